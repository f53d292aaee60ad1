package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
)

// queryParam parses the trimmed value of key. ok is false when the
// parameter is absent or blank.
func queryParam[T any](r *http.Request, key, want string, parse func(string) (T, error)) (value T, ok bool, err error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return value, false, nil
	}
	value, err = parse(raw)
	if err != nil {
		return value, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "query parameter must be "+want).
			WithDetails(map[string]any{"field": key})
	}
	return value, true, nil
}

// ParseQueryInt returns defaultVal when key is absent and rejects values
// outside [min, max].
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	value, ok, err := queryParam(r, key, "numeric", strconv.Atoi)
	switch {
	case err != nil:
		return 0, err
	case !ok:
		return defaultVal, nil
	case value < min || value > max:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryUUID returns nil when the parameter is absent.
func ParseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	id, ok, err := queryParam(r, key, "a uuid", uuid.Parse)
	if !ok {
		return nil, err
	}
	return &id, nil
}

// ParseQueryBool accepts the strconv.ParseBool spellings; nil when absent.
func ParseQueryBool(r *http.Request, key string) (*bool, error) {
	flag, ok, err := queryParam(r, key, "a boolean", strconv.ParseBool)
	if !ok {
		return nil, err
	}
	return &flag, nil
}
