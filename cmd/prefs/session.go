package prefs

import (
	"context"
	"time"

	"github.com/ValentinKolb/prefkv/cmd/util"
	"github.com/ValentinKolb/prefkv/lib/common"
	"github.com/ValentinKolb/prefkv/lib/lifecycle"
	"github.com/ValentinKolb/prefkv/lib/pref"
	"github.com/ValentinKolb/prefkv/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("cmd")

// session is the host of the preferences a command works with. It owns the
// store, one scope and the lifecycle driving the handles.
type session struct {
	conf  *common.Config
	store store.IStore
	scope *pref.Scope
	reg   *lifecycle.Registry
	host  pref.Host
}

func openSession(conf *common.Config) (*session, error) {
	s, err := util.OpenStore(conf)
	if err != nil {
		return nil, err
	}
	return newSession(conf, s), nil
}

func newSession(conf *common.Config, s store.IStore) *session {
	var opts []pref.ScopeOption
	if conf.BackgroundWorkers > 0 {
		opts = append(opts, pref.WithBackgroundLimit(conf.BackgroundWorkers))
	}
	scope := pref.NewScope(func() (store.IStore, error) { return s, nil }, opts...)
	reg := lifecycle.NewRegistry()
	plog.Debugf("session %s opened with scope %s", reg.ID(), scope.ID())
	return &session{
		conf:  conf,
		store: s,
		scope: scope,
		reg:   reg,
		host:  pref.NewHost(scope, reg),
	}
}

// start creates and activates the host
func (s *session) start() error {
	if err := s.reg.Create(); err != nil {
		return err
	}
	return s.reg.Activate()
}

// timeout returns a context bounded by the configured timeout
func (s *session) timeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, time.Duration(s.conf.TimeoutSecond)*time.Second)
}

func (s *session) close() {
	if s.reg.State() != lifecycle.Destroyed {
		if err := s.reg.Destroy(); err != nil {
			plog.Warningf("destroying session %s: %v", s.reg.ID(), err)
		}
	}
	s.scope.Close()
	if err := s.store.Close(); err != nil {
		plog.Warningf("closing store: %v", err)
	}
}
