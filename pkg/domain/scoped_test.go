package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	dErrors "keystone/pkg/domain-errors"
)

type ScopedIDSuite struct {
	suite.Suite
}

func TestScopedIDSuite(t *testing.T) {
	suite.Run(t, new(ScopedIDSuite))
}

func (s *ScopedIDSuite) TestGlobalRoundTrip() {
	original := NewScopedID(nil)

	decoded, err := ParseStreamKey(original.StreamKey())
	s.Require().NoError(err)
	s.Nil(decoded.TenantID)
	s.Equal(original.EntityID, decoded.EntityID)
	s.True(decoded.IsGlobal())
}

func (s *ScopedIDSuite) TestTenantScopedRoundTrip() {
	tenantID := TenantID(uuid.New())
	original := NewScopedID(&tenantID)

	key := original.StreamKey()
	s.True(strings.HasPrefix(key, tenantID.String()+":"))

	decoded, err := ParseStreamKey(key)
	s.Require().NoError(err)
	s.Require().NotNil(decoded.TenantID)
	s.Equal(tenantID, *decoded.TenantID)
	s.Equal(original.EntityID, decoded.EntityID)
}

func (s *ScopedIDSuite) TestParseRejectsMalformed() {
	tenantID := TenantID(uuid.New())

	cases := map[string]string{
		"empty":              "",
		"bad base64":         "!!!not-base64!!!",
		"wrong byte length":  "YWJj",
		"bad tenant token":   "not-a-uuid:" + NewScopedID(nil).StreamKey(),
		"short scoped bytes": tenantID.String() + ":YWJj",
	}

	for name, key := range cases {
		s.Run(name, func() {
			_, err := ParseStreamKey(key)
			s.Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func (s *ScopedIDSuite) TestSameTenant() {
	tenantA := TenantID(uuid.New())
	tenantB := TenantID(uuid.New())

	s.True(NewScopedID(&tenantA).SameTenant(NewScopedID(&tenantA)))
	s.False(NewScopedID(&tenantA).SameTenant(NewScopedID(&tenantB)))
	s.False(NewScopedID(&tenantA).SameTenant(NewScopedID(nil)))
	s.True(NewScopedID(nil).SameTenant(NewScopedID(nil)))
}
