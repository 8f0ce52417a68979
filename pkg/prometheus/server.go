package prometheus

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shelter-labs/sponsorship-storage/pkg/httpsrv"
)

func NewServer(listen, path string) *http.Server {
	r := mux.NewRouter()
	r.Handle(path, promhttp.Handler())

	return httpsrv.NewServer(listen, r)
}
