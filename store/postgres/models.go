package postgres

import (
	"time"

	"github.com/xraph/grove"
)

type kvModel struct {
	grove.BaseModel `grove:"table:iap_kv"`

	Key       string    `grove:"key,pk"`
	Value     string    `grove:"value"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toKVModel(key, value string) *kvModel {
	return &kvModel{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
}
