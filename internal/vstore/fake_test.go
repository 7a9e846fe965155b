package vstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 is an in-memory S3API for tests.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]map[string]string
	puts     int
	copies   int
	buckets  map[string]bool

	failCopy bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:  make(map[string][]byte),
		metadata: make(map[string]map[string]string),
		buckets:  make(map[string]bool),
	}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = data
	f.metadata[*in.Key] = in.Metadata
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCopy {
		return nil, &s3types.NoSuchKey{}
	}
	// CopySource is "bucket/key"
	src := *in.CopySource
	if i := strings.Index(src, "/"); i >= 0 {
		src = src[i+1:]
	}
	data, ok := f.objects[src]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	f.objects[*in.Key] = append([]byte(nil), data...)
	f.copies++
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	delete(f.metadata, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buckets[*in.Bucket] {
		return nil, &s3types.BucketAlreadyOwnedByYou{}
	}
	f.buckets[*in.Bucket] = true
	return &s3.CreateBucketOutput{}, nil
}

// fakeDDB is an in-memory DynamoDBAPI for tests. Items are keyed pk, then
// sk; Query returns descending sk order like the repository requests.
type fakeDDB struct {
	mu     sync.Mutex
	items  map[string]map[string]map[string]ddbtypes.AttributeValue
	tables map[string]bool

	// sks hidden from Query results but still visible to PutItem's
	// condition check, to simulate a concurrent publisher's claim landing
	// between the version read and the conditional put
	hideFromQuery map[string]bool
}

func newFakeDDB() *fakeDDB {
	return &fakeDDB{
		items:  make(map[string]map[string]map[string]ddbtypes.AttributeValue),
		tables: make(map[string]bool),
	}
}

func strAttr(av map[string]ddbtypes.AttributeValue, key string) string {
	if v, ok := av[key].(*ddbtypes.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := strAttr(in.Item, "pk")
	sk := strAttr(in.Item, "sk")

	if in.ConditionExpression != nil && strings.Contains(*in.ConditionExpression, "attribute_not_exists") {
		if _, exists := f.items[pk][sk]; exists {
			return nil, &ddbtypes.ConditionalCheckFailedException{}
		}
	}
	if f.items[pk] == nil {
		f.items[pk] = make(map[string]map[string]ddbtypes.AttributeValue)
	}
	f.items[pk][sk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDDB) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := strAttr(in.Key, "pk")
	sk := strAttr(in.Key, "sk")
	item := f.items[pk][sk]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDDB) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := ""
	if v, ok := in.ExpressionAttributeValues[":pk"].(*ddbtypes.AttributeValueMemberS); ok {
		pk = v.Value
	}

	sks := make([]string, 0, len(f.items[pk]))
	for sk := range f.items[pk] {
		if f.hideFromQuery[sk] {
			continue
		}
		sks = append(sks, sk)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(sks)))

	out := &dynamodb.QueryOutput{}
	for _, sk := range sks {
		out.Items = append(out.Items, f.items[pk][sk])
	}
	return out, nil
}

func (f *fakeDDB) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &dynamodb.ScanOutput{}
	pks := make([]string, 0, len(f.items))
	for pk := range f.items {
		pks = append(pks, pk)
	}
	sort.Strings(pks)
	for _, pk := range pks {
		for _, item := range f.items[pk] {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func (f *fakeDDB) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := strAttr(in.Key, "pk")
	sk := strAttr(in.Key, "sk")
	delete(f.items[pk], sk)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDDB) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tables[*in.TableName] {
		return nil, &ddbtypes.ResourceInUseException{}
	}
	f.tables[*in.TableName] = true
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDDB) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{
		Table: &ddbtypes.TableDescription{TableStatus: ddbtypes.TableStatusActive},
	}, nil
}

// newTestRepo wires a Repository over fresh fakes.
func newTestRepo(suffix string) (*Repository, *fakeS3, *fakeDDB) {
	s3f := newFakeS3()
	ddbf := newFakeDDB()
	repo, err := New(Options{
		Region:    "us-east-2",
		Bucket:    "artifact-bucket",
		Prefix:    "glue/artifacts",
		TableName: "glue-artifact-versions",
		Suffix:    suffix,
		S3:        s3f,
		DynamoDB:  ddbf,
	})
	if err != nil {
		panic(err)
	}
	return repo, s3f, ddbf
}
