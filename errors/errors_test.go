package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tverdal/gofat32/errors"
)

func TestDriverErrorDefaultMessage(t *testing.T) {
	err := errors.New(errors.KindNotFound)
	assert.Equal(t, "no such file or directory", err.Error())
	assert.Equal(t, errors.KindNotFound, err.Kind())
}

func TestDriverErrorNewf(t *testing.T) {
	err := errors.Newf(errors.KindInvalid, "offset %d exceeds size %d", 10, 5)
	assert.Equal(t, "offset 10 exceeds size 5", err.Error())
}

func TestDriverErrorWrap(t *testing.T) {
	cause := stderrors.New("short read")
	err := errors.Wrap(errors.KindIO, cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, errors.IsKind(err, errors.KindIO))
}

func TestDriverErrorIsMatchesByKind(t *testing.T) {
	a := errors.New(errors.KindExists)
	b := errors.Newf(errors.KindExists, "HELLO.TXT already exists")

	assert.ErrorIs(t, a, b)
	assert.False(t, errors.IsKind(a, errors.KindNoSpace))
}
