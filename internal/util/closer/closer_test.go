/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package closer

import (
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
)

type trackingCloser struct {
	closed bool
	err    error
}

func (c *trackingCloser) Close() error {
	c.closed = true
	return c.err
}

func TestCloseQuietly(t *testing.T) {
	c := &trackingCloser{}
	CloseQuietly(c, logr.Discard(), "test")
	assert.True(t, c.closed)
}

func TestCloseQuietlyWithError(t *testing.T) {
	c := &trackingCloser{err: errors.New("already closed")}
	assert.NotPanics(t, func() {
		CloseQuietly(c, logr.Discard(), "test")
	})
	assert.True(t, c.closed)
}

func TestCloseQuietlyNil(t *testing.T) {
	assert.NotPanics(t, func() {
		CloseQuietly(nil, logr.Discard(), "test")
	})
}

func TestCloseQuietlyWithoutLogger(t *testing.T) {
	c := &trackingCloser{err: errors.New("already closed")}
	CloseQuietlyWithoutLogger(c)
	assert.True(t, c.closed)
	CloseQuietlyWithoutLogger(nil)
}
