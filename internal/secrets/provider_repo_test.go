package secrets

import (
	"errors"
	"testing"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/require"
)

type vaultMock struct {
	data  map[string]map[string]interface{}
	reads int
	err   error
}

func (m *vaultMock) Read(path string) (*vaultapi.Secret, error) {
	m.reads++
	if m.err != nil {
		return nil, m.err
	}

	data, ok := m.data[path]
	if !ok {
		return nil, nil
	}

	return &vaultapi.Secret{Data: data}, nil
}

func (m *vaultMock) Write(path string, data map[string]interface{}) (*vaultapi.Secret, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.data[path] = data

	return &vaultapi.Secret{}, nil
}

func TestUnitProviderRepoGet(t *testing.T) {
	cli := &vaultMock{data: map[string]map[string]interface{}{
		"secret/data/sponsorship/stripe": {
			keyData: map[string]interface{}{
				keyAPIKey:        "sk_test",
				keyWebhookSecret: "whsec_test",
			},
		},
		"secret/data/sponsorship/broken": {
			keyData: "plain",
		},
	}}
	repo := NewProviderRepo(cli, "secret/data/sponsorship/")

	sec, err := repo.Get("stripe")
	require.NoError(t, err)
	require.Equal(t, ProviderSecrets{APIKey: "sk_test", WebhookSecret: "whsec_test"}, sec)

	_, err = repo.Get("stripe")
	require.NoError(t, err)
	require.Equal(t, 1, cli.reads)

	_, err = repo.Get("paypal")
	require.ErrorIs(t, err, ErrSecretNotFound)

	_, err = repo.Get("broken")
	require.ErrorIs(t, err, ErrUnableToCastData)
}

func TestUnitProviderRepoSave(t *testing.T) {
	cli := &vaultMock{data: map[string]map[string]interface{}{}}
	repo := NewProviderRepo(cli, "secret/data/sponsorship/")

	in := ProviderSecrets{APIKey: "sk_live", WebhookSecret: "whsec_live", ProductID: "prod_1"}
	require.NoError(t, repo.Save("stripe", in))

	sec, err := repo.Get("stripe")
	require.NoError(t, err)
	require.Equal(t, in, sec)
	require.Zero(t, cli.reads)

	cli.err = errors.New("sealed")
	require.Error(t, repo.Save("stripe", in))
}
