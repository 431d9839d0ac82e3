// Copyright (C) 2025 warden-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package wardenerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestToStatusMapsClientVisibleCodes(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{ErrDuplicateAccount, codes.AlreadyExists},
		{ErrInvalidAccount, codes.NotFound},
		{ErrInvalidLogin, codes.Unauthenticated},
		{ErrInvalidSession, codes.Unauthenticated},
		{ErrExpiredSession, codes.Unauthenticated},
		{ErrKeyNotFound, codes.NotFound},
		{ErrIncorrectKeyMetadata, codes.NotFound},
		{ErrStorageKeyAlreadySet, codes.FailedPrecondition},
		{ErrStorageKeyNotSet, codes.FailedPrecondition},
		{ErrBlobTooLarge, codes.InvalidArgument},
		{ErrAuthenticatedChannelNeeded, codes.InvalidArgument},
		{ErrUnauthenticatedChannelNeeded, codes.InvalidArgument},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ToStatus(tc.err).Code(), "%v", tc.err)
	}
}

func TestToStatusNeverLeaksInternalDetail(t *testing.T) {
	cause := errors.New("pq: connection refused to 10.0.0.5:5432")
	st := ToStatus(Wrap(CodeInternal, cause, "add secret"))

	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())
	assert.NotContains(t, st.Message(), "10.0.0.5")

	// A bare error that never got a code is treated the same way.
	st = ToStatus(cause)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())
}

func TestToStatusStorageOutageIsNotUnauthenticated(t *testing.T) {
	st := ToStatus(Wrap(CodeStorageUnavailable, errors.New("redis timeout"), "session cache unavailable"))

	// A cache outage must read as "try later", never as "log in again".
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())
}

func TestIsMatchesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("while retrieving: %w", ErrKeyNotFound)
	assert.True(t, Is(err, CodeKeyNotFound))
	assert.False(t, Is(err, CodeInvalidLogin))
	assert.False(t, Is(errors.New("plain"), CodeKeyNotFound))
}

func TestFormatAudit(t *testing.T) {
	assert.Equal(t, "key_not_found: key not found", FormatAudit(ErrKeyNotFound))
	assert.Equal(t, "internal error", FormatAudit(errors.New("raw cause")))
}
