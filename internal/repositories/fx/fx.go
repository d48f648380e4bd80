package fx

import (
	"github.com/orgball2608/video-distributor/internal/repositories/escalation"
	"github.com/orgball2608/video-distributor/internal/repositories/post"
	"github.com/orgball2608/video-distributor/internal/repositories/session"
	"github.com/orgball2608/video-distributor/internal/repositories/throttlestate"
	"go.uber.org/fx"
)

var Module = fx.Options(
	post.Module,
	throttlestate.Module,
	escalation.Module,
	session.Module,
)
