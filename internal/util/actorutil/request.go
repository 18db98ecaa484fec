package actorutil

import (
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

// Responder answers a request to its ReplyToRef when set, otherwise to the sender.
type Responder struct {
	req domain.ActorRequest
}

func ForRequest(r domain.ActorRequest) Responder {
	return Responder{req: r}
}

func (r Responder) Respond(ctx actor.Context, resp domain.ActorResponse) {
	if ref := r.req.ReplyTo(); ref != nil {
		ctx.Send((*actor.PID)(ref), resp)
		return
	}
	ctx.Respond(resp)
}
