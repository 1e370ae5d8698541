package discovery

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// Registrar announces this instance to Consul so the gateway can route
// websocket upgrades to it.
type Registrar struct {
	client    *consulapi.Client
	serviceID string
	logger    *zap.Logger
}

func NewRegistrar(addr string, logger *zap.Logger) (*Registrar, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Registrar{client: client, logger: logger}, nil
}

// Registration builds the service record with an HTTP health check on /v1/health.
func Registration(name, instance, host string, port int) *consulapi.AgentServiceRegistration {
	return &consulapi.AgentServiceRegistration{
		ID:      fmt.Sprintf("%s-%s", name, instance),
		Name:    name,
		Address: host,
		Port:    port,
		Tags:    []string{"websocket", "chat"},
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/v1/health", host, port),
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
}

func (r *Registrar) Register(reg *consulapi.AgentServiceRegistration) error {
	if err := r.client.Agent().ServiceRegister(reg); err != nil {
		return err
	}
	r.serviceID = reg.ID
	r.logger.Info("registered with consul", zap.String("id", reg.ID))
	return nil
}

func (r *Registrar) Deregister() error {
	if r.serviceID == "" {
		return nil
	}
	return r.client.Agent().ServiceDeregister(r.serviceID)
}
