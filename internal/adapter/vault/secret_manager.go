package vault

import (
	"fmt"

	"github.com/hashicorp/vault/api"
)

type SecretManager struct {
	client *api.Client
	mount  string
}

func NewSecretManager(address, token, mount string) (*SecretManager, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	client.SetToken(token)

	if mount == "" {
		mount = "secret"
	}

	return &SecretManager{client: client, mount: mount}, nil
}

func (sm *SecretManager) GetDatabaseURL() (string, error) {
	return sm.read("database", "url")
}

func (sm *SecretManager) GetStripeSecretKey() (string, error) {
	return sm.read("stripe", "secret_key")
}

func (sm *SecretManager) GetSendGridAPIKey() (string, error) {
	return sm.read("sendgrid", "api_key")
}

func (sm *SecretManager) read(path, key string) (string, error) {
	secret, err := sm.client.Logical().Read(fmt.Sprintf("%s/data/%s", sm.mount, path))
	if err != nil {
		return "", err
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("vault: no secret at %s/%s", sm.mount, path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("vault: unexpected secret shape at %s/%s", sm.mount, path)
	}

	value, ok := data[key].(string)
	if !ok {
		return "", fmt.Errorf("vault: key %q missing at %s/%s", key, sm.mount, path)
	}

	return value, nil
}
