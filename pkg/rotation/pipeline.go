package rotation

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/tendant/simple-clients/pkg/errors"
	"github.com/tendant/simple-clients/pkg/tenant"
)

// Stage identifies which pipeline stage failed
type Stage string

const (
	// StageRevocation deletes the client's authorizations. Idempotent:
	// re-running it against an already-clean client is a no-op success.
	StageRevocation Stage = "authorization_revocation"

	// StageSecretUpdate persists the new secret in a single statement.
	// It only runs after StageRevocation completed successfully.
	StageSecretUpdate Stage = "secret_update"
)

// Revoker is rotation stage 1; satisfied by authz.RevocationService
type Revoker interface {
	DeleteByClientID(ctx context.Context, tenantID int, clientID string) error
}

// SecretReplacer is rotation stage 2; satisfied by clientreg.ClientService
type SecretReplacer interface {
	ReplaceSecret(ctx context.Context, ten tenant.AuthTenant, clientID string, modifier tenant.AuthPrincipal) (string, error)
}

// Pipeline replaces a client's secret while guaranteeing no
// authorization issued against the old secret survives. The two stages
// run strictly in order: the new secret is never generated while old
// authorizations might still exist.
type Pipeline struct {
	revoker  Revoker
	replacer SecretReplacer
}

// NewPipeline creates a new secret rotation pipeline
func NewPipeline(revoker Revoker, replacer SecretReplacer) *Pipeline {
	return &Pipeline{
		revoker:  revoker,
		replacer: replacer,
	}
}

type rotationResult struct {
	secret string
	err    error
}

// RotateSecret runs the pipeline and returns the new plaintext secret.
// The call blocks until both stages complete or one fails. A caller
// timeout does not abort the pipeline once it has started: stage 1
// abandoned alone leaves a safe state (secret unchanged), and stage 2
// is a single atomic update, so the work always runs to a legal state.
//
// On failure the returned error carries which stage failed:
//   - StageRevocation failed: nothing changed, retrying is safe
//   - StageSecretUpdate failed: authorizations are gone, the old secret
//     remains; retrying is safe because stage 1 is idempotent
func (p *Pipeline) RotateSecret(ctx context.Context, ten tenant.AuthTenant, clientID string, modifier tenant.AuthPrincipal) (string, error) {
	done := make(chan rotationResult, 1)

	// Detach from the caller's cancellation; the pipeline must finish
	// whatever stage it is in
	workCtx := context.WithoutCancel(ctx)

	go func() {
		if err := p.revoker.DeleteByClientID(workCtx, ten.TenantID, clientID); err != nil {
			slog.Error("Secret rotation aborted, authorization revocation failed",
				"err", err, "tenant_id", ten.TenantID, "client_id", clientID)
			done <- rotationResult{err: stageError(StageRevocation, err)}
			return
		}

		secret, err := p.replacer.ReplaceSecret(workCtx, ten, clientID, modifier)
		if err != nil {
			slog.Error("Secret rotation failed after revocation",
				"err", err, "tenant_id", ten.TenantID, "client_id", clientID)
			done <- rotationResult{err: stageError(StageSecretUpdate, err)}
			return
		}

		slog.Info("Rotated client secret", "tenant_id", ten.TenantID, "client_id", clientID)
		done <- rotationResult{secret: secret}
	}()

	result := <-done
	return result.secret, result.err
}

func stageError(stage Stage, err error) error {
	return errors.Wrapf(err, errors.ErrCodeRotationFailed,
		"secret rotation failed at %s", stage).WithDetail("stage", string(stage))
}

// FailedStage reports which stage a rotation error came from, or ""
// when the error is not a rotation failure
func FailedStage(err error) Stage {
	if !errors.IsCode(err, errors.ErrCodeRotationFailed) {
		return ""
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return ""
	}
	stage, _ := e.Details["stage"].(string)
	return Stage(stage)
}
