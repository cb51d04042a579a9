// Package credential resolves how partscan authenticates with a store:
// either a static shared key or the ambient identity of the environment.
package credential

import (
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/pkg/errors"
)

// ErrMissingKey is returned when a static key is required but no source provides one.
var ErrMissingKey = errors.New("static key is required but not provided")

type Kind int

const (
	// StaticKeyKind authenticates with a shared secret.
	StaticKeyKind Kind = iota + 1

	// AmbientIdentityKind authenticates with an identity provided by the environment.
	AmbientIdentityKind
)

func (k Kind) String() string {
	switch k {
	case StaticKeyKind:
		return "static-key"
	case AmbientIdentityKind:
		return "ambient-identity"
	}
	return "unknown"
}

// Credential is either a static key or the ambient identity. The zero value is invalid.
type Credential struct {
	kind Kind
	key  *memguard.Enclave
}

// StaticKey seals the secret in an encrypted enclave.
func StaticKey(secret string) (Credential, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return Credential{}, ErrMissingKey
	}
	return Credential{
		kind: StaticKeyKind,
		key:  memguard.NewEnclave([]byte(secret)),
	}, nil
}

func AmbientIdentity() Credential {
	return Credential{kind: AmbientIdentityKind}
}

func (c Credential) Kind() Kind {
	return c.kind
}

// Reveal returns a plaintext copy of the static key.
// Call it only right before handing the key to a store client.
func (c Credential) Reveal() (string, error) {
	if c.kind != StaticKeyKind || c.key == nil {
		return "", errors.Errorf("%s credential has no key", c.kind)
	}
	buf, err := c.key.Open()
	if err != nil {
		return "", errors.Wrap(err, "open key enclave")
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}

// String never includes the secret.
func (c Credential) String() string {
	return c.kind.String()
}

// Source describes where a credential comes from.
type Source struct {
	UseDefaultCredential bool

	// KeyFile is a path to a file holding the static key. It takes precedence over KeyEnv.
	KeyFile string

	// KeyEnv is the name of the environment variable holding the static key.
	KeyEnv string
}

// Resolve picks the credential once at bootstrap. There is no built-in default key.
func Resolve(src Source) (Credential, error) {
	if src.UseDefaultCredential {
		return AmbientIdentity(), nil
	}
	if src.KeyFile != "" {
		data, err := os.ReadFile(src.KeyFile)
		if err != nil {
			return Credential{}, errors.Wrapf(err, "read key file %s", src.KeyFile)
		}
		cred, err := StaticKey(string(data))
		if err != nil {
			return Credential{}, errors.Wrapf(err, "key file %s", src.KeyFile)
		}
		return cred, nil
	}
	if src.KeyEnv != "" {
		if secret, ok := os.LookupEnv(src.KeyEnv); ok {
			cred, err := StaticKey(secret)
			if err != nil {
				return Credential{}, errors.Wrapf(err, "environment variable %s", src.KeyEnv)
			}
			return cred, nil
		}
	}
	return Credential{}, ErrMissingKey
}
