package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// SASL mechanisms accepted in Security.SASLMechanism.
const (
	SASLPlain       = "PLAIN"
	SASLScramSHA256 = "SCRAM-SHA-256"
	SASLScramSHA512 = "SCRAM-SHA-512"
)

// Security is shared by producers and consumers. An empty SASLMechanism
// disables SASL; an empty CACertPath disables TLS.
type Security struct {
	SASLMechanism string
	Username      string
	Password      string
	CACertPath    string
}

func (s Security) validate() error {
	if s.SASLMechanism != "" && (s.Username == "" || s.Password == "") {
		return errors.New(errors.ErrCodeValidation, "SASL credentials required").WithDetail(s.SASLMechanism)
	}
	return nil
}

func (s Security) tlsConfig() (*tls.Config, error) {
	if s.CACertPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(s.CACertPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to read kafka CA certificate")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New(errors.ErrCodeValidation, "kafka CA certificate contains no PEM blocks")
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (s Security) mechanism() (sasl.Mechanism, error) {
	var algo scram.Algorithm
	switch s.SASLMechanism {
	case "":
		return nil, nil
	case SASLPlain:
		return plain.Mechanism{Username: s.Username, Password: s.Password}, nil
	case SASLScramSHA256:
		algo = scram.SHA256
	case SASLScramSHA512:
		algo = scram.SHA512
	default:
		return nil, errors.New(errors.ErrCodeValidation, "unsupported SASL mechanism").WithDetail(s.SASLMechanism)
	}
	m, err := scram.Mechanism(algo, s.Username, s.Password)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to create SASL mechanism")
	}
	return m, nil
}
