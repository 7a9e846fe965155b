package vstore

import (
	"testing"
)

func TestNew_Validation(t *testing.T) {
	s3f := newFakeS3()
	ddbf := newFakeDDB()

	cases := []struct {
		name string
		opts Options
	}{
		{"missing bucket", Options{TableName: "t", S3: s3f, DynamoDB: ddbf}},
		{"missing table", Options{Bucket: "b", S3: s3f, DynamoDB: ddbf}},
		{"missing s3", Options{Bucket: "b", TableName: "t", DynamoDB: ddbf}},
		{"missing dynamodb", Options{Bucket: "b", TableName: "t", S3: s3f}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.opts); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestArtifactKey_Layout(t *testing.T) {
	repo, _, _ := newTestRepo(".py")

	got := repo.artifactKey("my-etl", LatestVersion)
	want := "glue/artifacts/my-etl/LATEST.py"
	if got != want {
		t.Fatalf("artifactKey = %q, want %q", got, want)
	}

	uri := repo.ArtifactS3URI("my-etl", "000003")
	wantURI := "s3://artifact-bucket/glue/artifacts/my-etl/000003.py"
	if uri != wantURI {
		t.Fatalf("ArtifactS3URI = %q, want %q", uri, wantURI)
	}
}

func TestArtifactKey_NoPrefix(t *testing.T) {
	repo, err := New(Options{
		Bucket:    "b",
		TableName: "t",
		Suffix:    ".zip",
		S3:        newFakeS3(),
		DynamoDB:  newFakeDDB(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := repo.artifactKey("lib", "LATEST"); got != "lib/LATEST.zip" {
		t.Fatalf("artifactKey = %q", got)
	}
}

func TestEncodeVersion(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{1, "000001"},
		{42, "000042"},
		{999999, "999999"},
		{1000000, "1000000"},
	}
	for _, tc := range cases {
		if got := EncodeVersion(tc.n); got != tc.want {
			t.Fatalf("EncodeVersion(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestNormalizeVersion(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "LATEST", true},
		{"latest", "LATEST", true},
		{"LATEST", "LATEST", true},
		{"7", "000007", true},
		{"000042", "000042", true},
		{"0", "", false},
		{"-3", "", false},
		{"abc", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizeVersion(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("NormalizeVersion(%q) = %q, %v", tc.in, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("NormalizeVersion(%q): expected error", tc.in)
		}
	}
}

func TestValidateName(t *testing.T) {
	if err := validateName("ok-name_1.2"); err != nil {
		t.Fatalf("valid name rejected: %v", err)
	}
	for _, bad := range []string{"", "  ", "a/b", `a\b`} {
		if err := validateName(bad); err == nil {
			t.Fatalf("validateName(%q): expected error", bad)
		}
	}
}
