package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithContext(t *testing.T) {
	base := New("open failed")
	wrapped := WithContext(WithContext(base, "copy"), "sync a.txt")

	assert.Equal(t, "sync a.txt: copy: open failed", wrapped.Error())
	assert.Equal(t, base, RootCause(wrapped))
}

func TestGetPrintableMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		exp  string
	}{
		{
			name: "Plain",
			err:  New("boom"),
			exp:  "boom",
		},
		{
			name: "Wrapped",
			err:  WithContext(New("boom"), "copy"),
			exp:  "copy: boom",
		},
		{
			name: "Friendly",
			err:  NewFriendlyError("The source directory %q doesn't exist.", "/src"),
			exp:  `The source directory "/src" doesn't exist.`,
		},
		{
			name: "WrappedFriendly",
			err: WithContext(
				NewFriendlyError("The source directory %q doesn't exist.", "/src"),
				"catalog source"),
			exp: `The source directory "/src" doesn't exist.`,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, GetPrintableMessage(test.err))
		})
	}
}

func TestRootCauseTypes(t *testing.T) {
	lockErr := FileLocked{Path: "/src/db.mdb"}
	wrapped := WithContext(lockErr, "probe lock")

	_, ok := RootCause(wrapped).(FileLocked)
	assert.True(t, ok)
}
