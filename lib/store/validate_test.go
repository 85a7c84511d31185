package store

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"simple", "user:1", false},
		{"max length", strings.Repeat("k", MaxKeyLength), false},
		{"empty", "", true},
		{"too long", strings.Repeat("k", MaxKeyLength+1), true},
		{"multibyte counts characters", strings.Repeat("é", 200), false},
		{"multibyte max length", strings.Repeat("é", MaxKeyLength), false},
		{"multibyte too long", strings.Repeat("é", MaxKeyLength+1), true},
		{"invalid utf8", "k\xff", true},
		{"nested path", "dir/sub/file", false},
		{"trailing slash", "dir/", false},
		{"three dots", "...", false},
		{"dot", ".", true},
		{"dot dot", "..", true},
		{"dot segment", "a/./b", true},
		{"dot dot segment", "a/../b", true},
		{"trailing dot dot", "a/..", true},
		{"empty segment", "a//b", true},
		{"leading slash", "/a", true},
		{"only slash", "/", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.wantErr {
				assert.True(t, IsValidation(err), "expected validation error, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateValue(t *testing.T) {
	assert.NoError(t, ValidateValue(""))
	assert.NoError(t, ValidateValue("grüße"))
	assert.True(t, IsValidation(ValidateValue("v\xfe")))
}

func TestValidateBatch_RejectsInvalidUTF8(t *testing.T) {
	err := ValidateBatch([]BatchItem{{Key: "ok", Value: "1"}, {Key: "k\xff", Value: "2"}}, 0)
	assert.True(t, IsValidation(err))

	err = ValidateBatch([]BatchItem{{Key: "ok", Value: "\xff"}}, 0)
	assert.True(t, IsValidation(err))
}

func TestValidateBatch(t *testing.T) {
	items := func(n int) []BatchItem {
		out := make([]BatchItem, n)
		for i := range out {
			out[i] = BatchItem{Key: fmt.Sprintf("key-%d", i), Value: ""}
		}
		return out
	}

	assert.NoError(t, ValidateBatch([]BatchItem{{Key: "a", Value: ""}}, 0))

	err := ValidateBatch(nil, 0)
	assert.Equal(t, RetCValidation, CodeOf(err))

	err = ValidateBatch(items(3), 2)
	require.Error(t, err)
	assert.Equal(t, RetCBatchTooLarge, CodeOf(err))
	assert.Contains(t, err.Error(), "batch size 3 exceeds the maximum of 2 items")

	err = ValidateBatch([]BatchItem{{Key: "a"}, {Key: "b"}, {Key: "a"}}, 0)
	assert.Equal(t, RetCValidation, CodeOf(err))
	assert.Contains(t, err.Error(), `"a"`)

	err = ValidateBatch([]BatchItem{{Key: ""}}, 0)
	assert.Equal(t, RetCValidation, CodeOf(err))
}

func TestNormalizeRange(t *testing.T) {
	q, err := NormalizeRange(RangeQuery{Start: "a", End: "z"}, 0)
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, q.Limit)

	q, err = NormalizeRange(RangeQuery{Start: "a", End: "z", Limit: 50}, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, q.Limit)

	q, err = NormalizeRange(RangeQuery{Start: "a", End: "a", Limit: 5, Offset: 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, q.Limit)
	assert.Equal(t, 2, q.Offset)

	bad := []RangeQuery{
		{Start: "", End: "z"},
		{Start: "a", End: ""},
		{Start: "z", End: "a"},
		{Start: "a", End: "z", Limit: -1},
		{Start: "a", End: "z", Offset: -1},
	}
	for _, b := range bad {
		_, err := NormalizeRange(b, 0)
		assert.True(t, IsValidation(err), "expected validation error for %+v", b)
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, RetCSuccess, CodeOf(nil))
	assert.Equal(t, RetCInternalError, CodeOf(errors.New("boom")))
	assert.Equal(t, RetCNotFound, CodeOf(errors.Wrap(NewError(RetCNotFound, "gone"), "get")))

	qErr := &QuorumError{Reached: 1, Required: 2, Total: 3, Failed: []string{"http://b", "http://c"}}
	assert.True(t, IsQuorumFailure(errors.Wrap(qErr, "put")))
	assert.Equal(t, "replication failed, 1/3 nodes reachable (need 2)", qErr.Error())
	assert.False(t, IsNotFound(qErr))
}

func TestParseRetCode(t *testing.T) {
	for c := RetCSuccess; c <= RetCQuorumFailed; c++ {
		assert.Equal(t, c, ParseRetCode(c.String()))
	}
	assert.Equal(t, RetCInternalError, ParseRetCode("nonsense"))
}
