package config

type API struct {
	Bind       string `env:"API_HTTP_SERVER_BIND" envDefault:":11000"`
	AdminToken string `env:"API_ADMIN_TOKEN"`
}
