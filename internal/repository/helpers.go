package repository

import (
	"database/sql"
	"errors"
)

// HandleNotFound maps sql.ErrNoRows to (nil, nil) so that Find* methods can
// report an absent row without an error.
//
//	var s model.StoredSession
//	err := r.db.GetContext(ctx, &s, query, sessionID)
//	return HandleNotFound(&s, err)
func HandleNotFound[T any](result *T, err error) (*T, error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return result, nil
}
