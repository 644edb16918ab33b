package serializer_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/serializer"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleUsers() []*model.User {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*model.User{
		{ID: uuid.New(), Email: "a@x.com", FirstName: "Ann", LastName: "Lee, Jr.", Role: permission.RoleAdmin, IsActive: true, CreatedAt: created},
		{ID: uuid.New(), Email: "b@x.com", Role: permission.RoleUser, CreatedAt: created},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := serializer.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, serializer.FormatCSV, f)

	f, err = serializer.ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, serializer.FormatJSON, f)

	_, err = serializer.ParseFormat("xlsx")
	assert.ErrorIs(t, err, serializer.ErrUnsupportedFormat)
}

func TestCSVSerializer(t *testing.T) {
	users := sampleUsers()

	var buf bytes.Buffer
	require.NoError(t, serializer.Encode(serializer.FormatCSV, users, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, (&model.User{}).CSVHeader(), rows[0])
	assert.Equal(t, users[0].CSVRecord(), rows[1])
	assert.Contains(t, rows[1], "Lee, Jr.")
}

func TestCSVSerializerEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, serializer.Encode(serializer.FormatCSV, []*model.Organization{}, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, (&model.Organization{}).CSVHeader(), rows[0])
}

func TestCSVSerializerRejectsNonSlice(t *testing.T) {
	err := serializer.Encode(serializer.FormatCSV, &model.User{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestJSONSerializer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, serializer.Encode(serializer.FormatJSON, sampleUsers(), &buf))

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "a@x.com", decoded[0]["email"])
	assert.NotContains(t, decoded[0], "password_hash")

	buf.Reset()
	var none []*model.User
	require.NoError(t, serializer.Encode(serializer.FormatJSON, none, &buf))
	assert.JSONEq(t, "[]", buf.String())
}
