package admission

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

type fakeRow struct {
	role string
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.role
	return nil
}

type fakeDB map[string]fakeRow

func (db fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	key := args[0].(string) + "/" + args[1].(string)
	if row, ok := db[key]; ok {
		return row
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func TestAllowAll(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, AllowAll{}.Admit(ctx, Request{RoomID: "r", UserID: "u"}))
	assert.ErrorIs(t, AllowAll{}.Admit(ctx, Request{RoomID: "r"}), ErrMissingIdentity)
}

func TestPostgresChecker(t *testing.T) {
	boom := errors.New("connection reset")
	checker := NewChecker(fakeDB{
		"math/ada":   {role: "student"},
		"math/grace": {role: "instructor"},
		"math/bob":   {err: boom},
	})
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"enrolled student", Request{RoomID: "math", UserID: "ada"}, nil},
		{"student claiming instructor", Request{RoomID: "math", UserID: "ada", Instructor: true}, ErrNotInstructor},
		{"instructor", Request{RoomID: "math", UserID: "grace", Instructor: true}, nil},
		{"unknown user", Request{RoomID: "math", UserID: "eve"}, ErrNotEnrolled},
		{"query failure", Request{RoomID: "math", UserID: "bob"}, boom},
		{"missing ids", Request{}, ErrMissingIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checker.Admit(ctx, tt.req)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
