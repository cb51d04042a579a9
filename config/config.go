// Package config loads the settings of a comparison run from a JSON file.
package config

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/ab180/partscan/credential"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultPath is the config file read from the working directory.
const DefaultPath = "config.json"

const (
	EtcdBackend   = "etcd"
	MemoryBackend = "memory"
)

var ErrMalformed = errors.New("malformed config file")

type Config struct {
	Backend   string `json:"backend" default:"etcd" validate:"oneof=etcd memory"`
	Endpoint  string `json:"endpoint" default:"127.0.0.1:2379" validate:"required"`
	Database  string `json:"database" default:"testdb" validate:"required"`
	Container string `json:"container" default:"testcontainer" validate:"required"`
	// PartitionKey is the top-level document field hashed to place documents in the keyspace.
	PartitionKey string `json:"partition_key" default:"id" validate:"required"`
	Query     string `json:"query" default:"SELECT VALUE SUM(LENGTH(c.id)) FROM c" validate:"required"`

	// UseDefaultCredential selects the ambient identity of the process instead of a static key.
	UseDefaultCredential bool   `json:"use_default_credential"`
	Username             string `json:"username" default:"root"`
	KeyEnv               string `json:"key_env" default:"PARTSCAN_KEY"`
	KeyFile              string `json:"key_file"`

	Concurrency int      `json:"concurrency" default:"0" validate:"gte=0"`
	Timeout     Duration `json:"timeout" default:"0" validate:"gte=0"`
	PageSize    int      `json:"page_size" default:"1000" validate:"gt=0"`
	MetricsAddr string   `json:"metrics_addr" validate:"omitempty,hostname_port"`

	Memory struct {
		Partitions int      `json:"partitions" default:"3" validate:"gte=0"`
		Documents  int      `json:"documents" default:"30" validate:"gte=0"`
		Latency    Duration `json:"latency" default:"0" validate:"gte=0"`
	} `json:"memory"`
}

func Default() (c Config) {
	if err := defaults.Set(&c); err != nil {
		panic(err)
	}
	return
}

// Load reads the config file at path on top of the defaults.
// A missing file is not an error: defaults are used and a warning is logged.
func Load(path string) (Config, error) {
	c := Default()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Warn().Str("path", path).Msg("config file not found, using defaults")
		return c, nil
	}
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	if err := jsoniter.Unmarshal(raw, &c); err != nil {
		return Config{}, errors.Wrapf(ErrMalformed, "%s: %v", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// Namespace is the key prefix of the container in the store.
func (c Config) Namespace() string {
	return c.Database + "/" + c.Container + "/"
}

func (c Config) CredentialSource() credential.Source {
	return credential.Source{
		UseDefaultCredential: c.UseDefaultCredential,
		KeyFile:              c.KeyFile,
		KeyEnv:               c.KeyEnv,
	}
}

// Duration is a time.Duration written as a string like "1m30s" in JSON.
// A bare number is read as seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return jsoniter.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := jsoniter.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(v * float64(time.Second))
	default:
		return errors.Errorf("invalid duration %s", data)
	}
	return nil
}
