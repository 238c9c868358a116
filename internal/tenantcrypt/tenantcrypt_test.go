package tenantcrypt

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "keystone/pkg/domain"
)

type EncryptorSuite struct {
	suite.Suite
	encryptor *Encryptor
	tenantA   id.TenantID
	tenantB   id.TenantID
}

func TestEncryptorSuite(t *testing.T) {
	suite.Run(t, new(EncryptorSuite))
}

func (s *EncryptorSuite) SetupTest() {
	master := bytes.Repeat([]byte{0x42}, 32)
	encryptor, err := New(master)
	s.Require().NoError(err)
	s.encryptor = encryptor
	s.tenantA = id.TenantID(uuid.New())
	s.tenantB = id.TenantID(uuid.New())
}

func (s *EncryptorSuite) TestRejectsWrongMasterKeyLength() {
	_, err := New([]byte("short"))
	s.Error(err)
}

func (s *EncryptorSuite) TestDeriveKeyIsDeterministicPerTenant() {
	keyA1, err := s.encryptor.DeriveKey(&s.tenantA)
	s.Require().NoError(err)
	keyA2, err := s.encryptor.DeriveKey(&s.tenantA)
	s.Require().NoError(err)
	keyB, err := s.encryptor.DeriveKey(&s.tenantB)
	s.Require().NoError(err)
	global, err := s.encryptor.DeriveKey(nil)
	s.Require().NoError(err)

	s.Equal(keyA1, keyA2)
	s.NotEqual(keyA1, keyB)
	s.NotEqual(keyA1, global)
	s.Len(keyA1, 32)
}

func (s *EncryptorSuite) TestRoundTrip() {
	plaintext := []byte("webhook signing secret")

	sealed, err := s.encryptor.Encrypt(&s.tenantA, plaintext)
	s.Require().NoError(err)
	s.NotContains(sealed, "webhook")

	opened, err := s.encryptor.Decrypt(&s.tenantA, sealed)
	s.Require().NoError(err)
	s.Equal(plaintext, opened)
}

func (s *EncryptorSuite) TestGlobalScopeRoundTrip() {
	sealed, err := s.encryptor.Encrypt(nil, []byte("shared platform secret"))
	s.Require().NoError(err)

	opened, err := s.encryptor.Decrypt(nil, sealed)
	s.Require().NoError(err)
	s.Equal([]byte("shared platform secret"), opened)
}

func (s *EncryptorSuite) TestCrossTenantDecryptFails() {
	sealed, err := s.encryptor.Encrypt(&s.tenantA, []byte("tenant A only"))
	s.Require().NoError(err)

	_, err = s.encryptor.Decrypt(&s.tenantB, sealed)
	s.Error(err)

	_, err = s.encryptor.Decrypt(nil, sealed)
	s.Error(err)
}

func (s *EncryptorSuite) TestDecryptRejectsMalformed() {
	_, err := s.encryptor.Decrypt(&s.tenantA, "!!!not-base64")
	s.Error(err)

	_, err = s.encryptor.Decrypt(&s.tenantA, "c2hvcnQ")
	s.Error(err)
}
