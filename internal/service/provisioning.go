package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smartcare-health/smartcare-hms/internal/model"
)

// SchemaProvisioner creates tenant schemas. Satisfied by
// *provisioner.Provisioner.
type SchemaProvisioner interface {
	CreateSchema(ctx context.Context, tenant *model.Tenant) error
}

// ProvisioningService runs schema provisioning in the background so tenant
// registration returns immediately. Work is fed through a buffered channel
// to a single worker; provisioning itself is serialized per schema by an
// advisory lock, so one worker is enough and keeps DDL pressure low.
type ProvisioningService struct {
	provisioner SchemaProvisioner
	queue       chan *model.Tenant
	timeout     time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

func NewProvisioningService(provisioner SchemaProvisioner) *ProvisioningService {
	return &ProvisioningService{
		provisioner: provisioner,
		queue:       make(chan *model.Tenant, 64),
		timeout:     5 * time.Minute,
	}
}

// Start launches the worker goroutine. It runs until Stop is called.
func (s *ProvisioningService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop closes the queue and waits for in-flight provisioning to finish.
func (s *ProvisioningService) Stop() {
	s.once.Do(func() {
		close(s.queue)
	})
	s.wg.Wait()
	if s.cancel != nil {
		s.cancel()
	}
}

// QueueForProvisioning enqueues a tenant for schema creation. If the queue
// is full the work is dropped and logged; the operation is idempotent and
// can be retried from the CLI.
func (s *ProvisioningService) QueueForProvisioning(tenant *model.Tenant) {
	select {
	case s.queue <- tenant:
		log.Info().
			Str("tenant_id", tenant.ID.String()).
			Str("schema", tenant.SchemaName).
			Msg("tenant queued for provisioning")
	default:
		log.Error().
			Str("tenant_id", tenant.ID.String()).
			Str("schema", tenant.SchemaName).
			Msg("provisioning queue full, dropping; retry via CLI")
	}
}

func (s *ProvisioningService) run(ctx context.Context) {
	defer s.wg.Done()
	for tenant := range s.queue {
		s.provision(ctx, tenant)
	}
}

func (s *ProvisioningService) provision(ctx context.Context, tenant *model.Tenant) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.provisioner.CreateSchema(ctx, tenant); err != nil {
		log.Error().
			Err(err).
			Str("tenant_id", tenant.ID.String()).
			Str("schema", tenant.SchemaName).
			Msg("background provisioning failed")
		return
	}
	log.Info().
		Str("tenant_id", tenant.ID.String()).
		Str("schema", tenant.SchemaName).
		Msg("background provisioning complete")
}
