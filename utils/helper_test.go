package utils

import (
	"errors"
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestParseIDList(t *testing.T) {
	cases := []struct {
		in   string
		want []int
	}{
		{"", nil},
		{"3", []int{3}},
		{"3,5, 8", []int{3, 5, 8}},
		{"3,3,x,-1,0,5", []int{3, 5}},
		{" , ,", nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseIDList(tc.in), "ParseIDList(%q)", tc.in)
	}
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, SplitAndTrim(" a@x.com ,, b@x.com "))
	assert.Nil(t, SplitAndTrim("   "))
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT_ENV", "42")
	t.Setenv("TEST_BAD_INT_ENV", "x")
	t.Setenv("TEST_BOOL_ENV", "TRUE")
	assert.Equal(t, 42, IntFromEnv("TEST_INT_ENV", 1))
	assert.Equal(t, 1, IntFromEnv("TEST_BAD_INT_ENV", 1))
	assert.True(t, BoolFromEnv("TEST_BOOL_ENV"))
	assert.False(t, BoolFromEnv("TEST_UNSET_BOOL_ENV"))
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", &mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"})))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: delivery_confirmations.confirmed_order_id")))
	assert.False(t, IsDuplicateKeyErr(&mysqlDriver.MySQLError{Number: 1213}))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
	assert.False(t, IsDuplicateKeyErr(nil))
}

func TestBackoffIsCapped(t *testing.T) {
	assert.Equal(t, "2s", Backoff(1).String())
	assert.Equal(t, "30s", Backoff(10).String())
}
