package vstore

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

// item is the DynamoDB shape of one artifact version. pk is the artifact
// name, sk the version string; everything else is payload description.
type item struct {
	PK          string            `dynamodbav:"pk"`
	SK          string            `dynamodbav:"sk"`
	UpdateAt    time.Time         `dynamodbav:"update_at"`
	SHA256      string            `dynamodbav:"sha256"`
	Size        int64             `dynamodbav:"size"`
	ContentType string            `dynamodbav:"content_type"`
	Suffix      string            `dynamodbav:"suffix,omitempty"`
	Metadata    map[string]string `dynamodbav:"metadata,omitempty"`
}

func (r *Repository) itemFromArtifact(a Artifact) item {
	return item{
		PK:          a.Name,
		SK:          a.Version,
		UpdateAt:    a.UpdateAt,
		SHA256:      a.SHA256,
		Size:        a.Size,
		ContentType: a.ContentType,
		Suffix:      r.opts.Suffix,
		Metadata:    a.Metadata,
	}
}

func (r *Repository) artifactFromItem(it item) Artifact {
	// Items record the suffix they were written with so repositories opened
	// without one (the registry reads all artifact types) still produce the
	// real object URI.
	suffix := it.Suffix
	if suffix == "" {
		suffix = r.opts.Suffix
	}
	return Artifact{
		Name:        it.PK,
		Version:     it.SK,
		UpdateAt:    it.UpdateAt,
		SHA256:      it.SHA256,
		Size:        it.Size,
		ContentType: it.ContentType,
		S3URI:       r.artifactS3URIWithSuffix(it.PK, it.SK, suffix),
		Metadata:    it.Metadata,
	}
}

func marshalItem(it item) (map[string]ddbtypes.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return nil, xerrors.Wrap(err, "marshal artifact item")
	}
	return av, nil
}

func unmarshalItem(av map[string]ddbtypes.AttributeValue) (item, error) {
	var it item
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return item{}, xerrors.Wrap(err, "unmarshal artifact item")
	}
	return it, nil
}

// itemKey builds the composite key for GetItem/DeleteItem.
func itemKey(name, version string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"pk": &ddbtypes.AttributeValueMemberS{Value: name},
		"sk": &ddbtypes.AttributeValueMemberS{Value: version},
	}
}
