package secrets

import (
	"errors"
	"fmt"
	"sync"

	vaultapi "github.com/hashicorp/vault/api"
)

const (
	keyData          = "data"
	keyAPIKey        = "api_key"
	keyWebhookSecret = "webhook_secret"
	keyProductID     = "product_id"
)

type vaultReadWriter interface {
	Read(path string) (*vaultapi.Secret, error)
	Write(path string, data map[string]interface{}) (*vaultapi.Secret, error)
}

var (
	ErrUnableToCastData = errors.New("failed to cast data")
	ErrSecretNotFound   = errors.New("provider secret not found")
)

// ProviderSecrets are the credentials a payment gateway needs.
type ProviderSecrets struct {
	APIKey        string
	WebhookSecret string
	ProductID     string
}

// ProviderRepo reads payment provider credentials from Vault and keeps them in memory.
type ProviderRepo struct {
	cli      vaultReadWriter
	basePath string

	cache map[string]ProviderSecrets
	mux   sync.Mutex
}

func NewProviderRepo(cli vaultReadWriter, path string) *ProviderRepo {
	return &ProviderRepo{
		cli:      cli,
		basePath: path,
		cache:    make(map[string]ProviderSecrets),
	}
}

// NewVaultClient builds the logical client the repo reads through.
func NewVaultClient(address, token string) (*vaultapi.Logical, error) {
	cfg := vaultapi.DefaultConfig()
	cfg.Address = address

	cli, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	cli.SetToken(token)

	return cli.Logical(), nil
}

func (s *ProviderRepo) getPath(provider string) string {
	return fmt.Sprintf("%s%s", s.basePath, provider)
}

func (s *ProviderRepo) Get(provider string) (ProviderSecrets, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	if sec, ok := s.cache[provider]; ok {
		return sec, nil
	}

	sec, err := s.cli.Read(s.getPath(provider))
	if err != nil {
		return ProviderSecrets{}, fmt.Errorf("read %s secrets: %w", provider, err)
	}

	if sec == nil {
		return ProviderSecrets{}, ErrSecretNotFound
	}

	data, ok := sec.Data[keyData].(map[string]interface{})
	if !ok {
		return ProviderSecrets{}, ErrUnableToCastData
	}

	apiKey, ok := data[keyAPIKey].(string)
	if !ok {
		return ProviderSecrets{}, ErrUnableToCastData
	}

	res := ProviderSecrets{APIKey: apiKey}
	res.WebhookSecret, _ = data[keyWebhookSecret].(string)
	res.ProductID, _ = data[keyProductID].(string)

	s.cache[provider] = res

	return res, nil
}

func (s *ProviderRepo) Save(provider string, secrets ProviderSecrets) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	_, err := s.cli.Write(s.getPath(provider), map[string]interface{}{
		keyData: map[string]interface{}{
			keyAPIKey:        secrets.APIKey,
			keyWebhookSecret: secrets.WebhookSecret,
			keyProductID:     secrets.ProductID,
		},
	})
	if err != nil {
		return fmt.Errorf("write %s secrets: %w", provider, err)
	}

	s.cache[provider] = secrets

	return nil
}
