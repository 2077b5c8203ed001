package repository

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/digkill/faithtrain/internal/service"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"deadlock", &mysql.MySQLError{Number: errDeadlock, Message: "Deadlock found"}, true},
		{"lock wait", &mysql.MySQLError{Number: errLockWait, Message: "Lock wait timeout"}, true},
		{"bad conn", fmt.Errorf("exec: %w", driver.ErrBadConn), true},
		{"invalid conn", mysql.ErrInvalidConn, true},
		{"syntax", &mysql.MySQLError{Number: 1064, Message: "syntax"}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("op", tc.err)
			if got := errors.Is(err, service.ErrTransient); got != tc.transient {
				t.Fatalf("transient = %v, want %v (%v)", got, tc.transient, err)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("original error lost: %v", err)
			}
			if service.Retryable(err) != tc.transient {
				t.Fatalf("retryable mismatch for %v", err)
			}
		})
	}
}

func TestIsDuplicate(t *testing.T) {
	if !isDuplicate(fmt.Errorf("insert: %w", &mysql.MySQLError{Number: errDuplicateEntry})) {
		t.Fatal("1062 not detected")
	}
	if isDuplicate(&mysql.MySQLError{Number: 1064}) || isDuplicate(errors.New("x")) {
		t.Fatal("false positive")
	}
}

func TestNullHelpers(t *testing.T) {
	if nullTime(nil).Valid || timePtr(nullTime(nil)) != nil {
		t.Fatal("nil time round trip")
	}
	at := time.Date(2026, 3, 11, 9, 0, 0, 0, time.FixedZone("X", 3600))
	got := timePtr(nullTime(&at))
	if got == nil || !got.Equal(at) || got.Location() != time.UTC {
		t.Fatalf("time = %v", got)
	}
	if nullInt(nil).Valid || intPtr(nullInt(nil)) != nil {
		t.Fatal("nil int round trip")
	}
	n := 7
	if p := intPtr(nullInt(&n)); p == nil || *p != 7 {
		t.Fatalf("int = %v", p)
	}
	if forUpdate(false) != "" || forUpdate(true) != " FOR UPDATE" {
		t.Fatal("forUpdate")
	}
}
