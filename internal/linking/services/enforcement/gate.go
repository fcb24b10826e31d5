package enforcement

import (
	"context"

	"github.com/haukened/linkguard/internal/linking/domain"
)

// OnConnect is the connection gate. It acts only when the policy kicks at
// exactly this stage and the attempt has not been refused already. It runs
// one fresh query per call and refuses the attempt when the decision blocks;
// at Join the host turns the refusal into a kick. The gate never touches
// the FrozenSet.
func (e *Engine) OnConnect(ctx context.Context, attempt *domain.ConnectionAttempt, stage domain.Stage) error {
	p := e.policy.Policy()
	if !p.KicksAt(stage) {
		return nil
	}
	if prior, denied := attempt.Denied(); denied {
		e.logger.Debug(map[string]any{
			"player": attempt.User.String(),
			"stage":  stage.String(),
			"reason": prior,
		}, "Connection already refused, skipping link check")
		return nil
	}

	reason, blocked := e.decide(ctx, p, attempt.User, true)
	if !blocked {
		return nil
	}
	attempt.Deny(reason.String())
	e.logger.Info(map[string]any{
		"player": attempt.User.String(),
		"stage":  stage.String(),
	}, "Connection refused, player not linked")
	return nil
}
