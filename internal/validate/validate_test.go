package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileingest/internal/catalog"
	"fileingest/internal/model"
)

func sourceFor(threshold float64) catalog.DeclaredSource {
	return catalog.DeclaredSource{
		Name:        "orders",
		FilePattern: "orders_*.csv",
		RecordSchema: []catalog.SchemaField{
			{Name: "order_id", Type: catalog.FieldInt},
			{Name: "customer_email", Type: catalog.FieldEmail, ExternalAlias: "email"},
			{Name: "amount", Type: catalog.FieldDecimal},
			{Name: "notes", Type: catalog.FieldString, Optional: true},
		},
		TableName:                "orders_fact",
		Grain:                    []string{"order_id"},
		ValidationErrorThreshold: threshold,
	}
}

func TestValidateBatchAcceptsWellFormedRecords(t *testing.T) {
	v := New(sourceFor(0.1), 1, "orders_2026.csv", 42)
	batch := model.Batch{
		FirstRowNumber: 1,
		Records: []model.RawRecord{
			{"order_id": "1", "email": "a@example.com", "amount": "9.99"},
		},
	}
	out := v.ValidateBatch(batch)
	require.Len(t, out.Accepted, 1)
	assert.Empty(t, out.Rejected)
	assert.Equal(t, int64(1), out.Accepted[0].Fields["order_id"])
	assert.Equal(t, "orders_2026.csv", out.Accepted[0].SourceFilename)
	assert.Equal(t, int64(42), out.Accepted[0].FileLoadLogID)
}

func TestValidateBatchRejectsMissingRequiredField(t *testing.T) {
	v := New(sourceFor(0.5), 1, "orders.csv", 1)
	batch := model.Batch{
		FirstRowNumber: 1,
		Records: []model.RawRecord{
			{"order_id": "1", "amount": "9.99"},
		},
	}
	out := v.ValidateBatch(batch)
	require.Empty(t, out.Accepted)
	require.Len(t, out.Rejected, 1)
	assert.Equal(t, "MissingRequiredField", out.Rejected[0].Errors[0].ErrorType)
}

func TestValidateBatchRejectsBadEmail(t *testing.T) {
	v := New(sourceFor(0.5), 1, "orders.csv", 1)
	batch := model.Batch{
		FirstRowNumber: 1,
		Records: []model.RawRecord{
			{"order_id": "1", "email": "not-an-email", "amount": "9.99"},
		},
	}
	out := v.ValidateBatch(batch)
	require.Len(t, out.Rejected, 1)
	assert.Equal(t, "TypeCoercion", out.Rejected[0].Errors[0].ErrorType)
}

func TestValidateBatchIsCaseInsensitiveOnAlias(t *testing.T) {
	v := New(sourceFor(0.5), 1, "orders.csv", 1)
	batch := model.Batch{
		FirstRowNumber: 1,
		Records: []model.RawRecord{
			{"ORDER_ID": "1", "EMAIL": "a@example.com", "Amount": "9.99"},
		},
	}
	out := v.ValidateBatch(batch)
	require.Len(t, out.Accepted, 1)
}

func TestValidateBatchAllowsOptionalFieldMissing(t *testing.T) {
	v := New(sourceFor(0.5), 1, "orders.csv", 1)
	batch := model.Batch{
		FirstRowNumber: 1,
		Records: []model.RawRecord{
			{"order_id": "1", "email": "a@example.com", "amount": "9.99"},
		},
	}
	out := v.ValidateBatch(batch)
	require.Len(t, out.Accepted, 1)
	assert.Nil(t, out.Accepted[0].Fields["notes"])
}

func TestFinishPassesUnderThreshold(t *testing.T) {
	v := New(sourceFor(1.0), 1, "orders.csv", 1)
	v.ValidateBatch(model.Batch{Records: []model.RawRecord{{"order_id": "x"}}})
	assert.NoError(t, v.Finish())
}

func TestFinishFailsOverThreshold(t *testing.T) {
	v := New(sourceFor(0.0), 1, "orders.csv", 1)
	v.ValidateBatch(model.Batch{Records: []model.RawRecord{
		{"order_id": "x"}, // missing email/amount -> rejected
	}})
	err := v.Finish()
	require.Error(t, err)
}

func TestFinishNoOpOnEmptyBatch(t *testing.T) {
	v := New(sourceFor(0.0), 1, "orders.csv", 1)
	assert.NoError(t, v.Finish())
}

func TestCountsTracksAcceptedAndRejected(t *testing.T) {
	v := New(sourceFor(1.0), 1, "orders.csv", 1)
	v.ValidateBatch(model.Batch{Records: []model.RawRecord{
		{"order_id": "1", "email": "a@example.com", "amount": "9.99"},
		{"order_id": "bad_not_numeric_amount", "email": "a@example.com", "amount": "oops"},
	}})
	accepted, rejected := v.Counts()
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, rejected)
}
