package store

import (
	"path"
	"strings"
	"unicode/utf8"
)

// ValidateKey checks that key is usable as an entry key. Keys are part of the
// request path of the HTTP API and are sent to the peers as JSON, so they must
// be valid UTF-8 and must survive path cleaning unchanged.
func ValidateKey(key string) error {
	if key == "" {
		return NewError(RetCValidation, "key must not be empty")
	}
	if !utf8.ValidString(key) {
		return NewError(RetCValidation, "key must be valid UTF-8")
	}
	if utf8.RuneCountInString(key) > MaxKeyLength {
		return Errorf(RetCValidation, "key exceeds the maximum length of %d characters", MaxKeyLength)
	}
	if !isCleanPath(key) {
		return NewError(RetCValidation, `key must not contain empty, "." or ".." path segments`)
	}
	return nil
}

// ValidateValue checks that value can be sent to the peers unchanged.
func ValidateValue(value string) error {
	if !utf8.ValidString(value) {
		return NewError(RetCValidation, "value must be valid UTF-8")
	}
	return nil
}

// isCleanPath reports whether "/"+key is left untouched by the path cleaning
// of net/http.ServeMux, which keeps a trailing slash.
func isCleanPath(key string) bool {
	p := "/" + key
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned == p
}

// ValidateBatch checks a BatchPut request: it must not be empty, must not
// exceed maxItems (MaxBatchSize if maxItems <= 0) and must not contain a key twice.
func ValidateBatch(items []BatchItem, maxItems int) error {
	if maxItems <= 0 {
		maxItems = MaxBatchSize
	}
	if len(items) == 0 {
		return NewError(RetCValidation, "at least one item is required")
	}
	if len(items) > maxItems {
		return Errorf(RetCBatchTooLarge, "batch size %d exceeds the maximum of %d items", len(items), maxItems)
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if err := ValidateKey(item.Key); err != nil {
			return err
		}
		if err := ValidateValue(item.Value); err != nil {
			return err
		}
		if _, dup := seen[item.Key]; dup {
			return Errorf(RetCValidation, "duplicate key %q in batch request", item.Key)
		}
		seen[item.Key] = struct{}{}
	}
	return nil
}

// NormalizeRange validates q and returns a copy with Limit clamped to
// (0, maxPageSize]. maxPageSize <= 0 means MaxPageSize.
func NormalizeRange(q RangeQuery, maxPageSize int) (RangeQuery, error) {
	if maxPageSize <= 0 {
		maxPageSize = MaxPageSize
	}
	if q.Start == "" || q.End == "" {
		return q, NewError(RetCValidation, "start and end must not be empty")
	}
	if q.Start > q.End {
		return q, NewError(RetCValidation, "start key must be lexicographically <= end key")
	}
	if q.Limit < 0 {
		return q, NewError(RetCValidation, "limit must not be negative")
	}
	if q.Offset < 0 {
		return q, NewError(RetCValidation, "offset must not be negative")
	}
	if q.Limit == 0 || q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	return q, nil
}
