package legacy

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/qdash/queues"
)

// fakeClient scripts the narrow command surface the adapter uses.
type fakeClient struct {
	scanPages [][]string
	scanCalls int
	scanErr   error

	llen  map[string]int64
	zcard map[string]int64

	deleted []string
	delErr  error
	closed  bool
}

func (f *fakeClient) Scan(_ context.Context, _ uint64, _ string, _ int64) *redis.ScanCmd {
	if f.scanErr != nil {
		return redis.NewScanCmdResult(nil, 0, f.scanErr)
	}
	if f.scanCalls >= len(f.scanPages) {
		return redis.NewScanCmdResult(nil, 0, nil)
	}
	page := f.scanPages[f.scanCalls]
	f.scanCalls++

	var cursor uint64
	if f.scanCalls < len(f.scanPages) {
		cursor = uint64(f.scanCalls)
	}
	return redis.NewScanCmdResult(page, cursor, nil)
}

func (f *fakeClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.delErr != nil {
		return redis.NewIntResult(0, f.delErr)
	}
	f.deleted = append(f.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeClient) LLen(_ context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(f.llen[key], nil)
}

func (f *fakeClient) ZCard(_ context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(f.zcard[key], nil)
}

func (f *fakeClient) Ping(_ context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

type LegacySuite struct {
	suite.Suite
}

func TestLegacySuite(t *testing.T) {
	suite.Run(t, new(LegacySuite))
}

// The legacy family's options are flat: connection parameters at top level,
// prefix attached alongside, password without a username.
func (s *LegacySuite) TestBuildOptionsIsFlat() {
	profile := queues.ConnectionProfile{
		Host:     "kv.internal",
		Port:     6390,
		DB:       2,
		Username: "ignored-by-legacy",
		Password: "s3cret",
		UseTLS:   true,
		Prefix:   "bull",
	}

	opts := BuildOptions(profile)

	s.Equal("kv.internal", opts.Host)
	s.Equal(6390, opts.Port)
	s.Equal("s3cret", opts.Password)
	s.Equal(2, opts.DB)
	s.True(opts.UseTLS)
	s.Equal("bull", opts.Prefix)
}

func (s *LegacySuite) TestAdapterIdentity() {
	a := newWithClient("mail", "bull", &fakeClient{})

	s.Equal("mail", a.Name())
	s.Equal(queues.EngineLegacy, a.Engine())
}

func (s *LegacySuite) TestCounts() {
	client := &fakeClient{
		llen: map[string]int64{
			"bull:mail:wait":   4,
			"bull:mail:active": 1,
			"bull:mail:paused": 0,
		},
		zcard: map[string]int64{
			"bull:mail:completed": 10,
			"bull:mail:failed":    2,
			"bull:mail:delayed":   3,
		},
	}
	a := newWithClient("mail", "bull", client)

	counts, err := a.Counts(context.Background())
	s.Require().NoError(err)

	s.Equal(int64(4), counts.Waiting)
	s.Equal(int64(1), counts.Active)
	s.Equal(int64(10), counts.Completed)
	s.Equal(int64(2), counts.Failed)
	s.Equal(int64(3), counts.Delayed)
	s.Zero(counts.Paused)
}

func (s *LegacySuite) TestObliterateDeletesAllPagesAndMarker() {
	client := &fakeClient{
		scanPages: [][]string{
			{"bull:mail:1", "bull:mail:2"},
			{"bull:mail:wait", "bull:mail:meta"},
		},
	}
	a := newWithClient("mail", "bull", client)

	s.Require().NoError(a.Obliterate(context.Background(), true))

	s.Equal([]string{
		"bull:mail:1", "bull:mail:2",
		"bull:mail:wait", "bull:mail:meta",
		"bull:mail",
	}, client.deleted)
}

func (s *LegacySuite) TestObliterateRefusesActiveQueueWithoutForce() {
	client := &fakeClient{
		llen: map[string]int64{"bull:mail:active": 2},
	}
	a := newWithClient("mail", "bull", client)

	err := a.Obliterate(context.Background(), false)
	s.Require().Error(err)
	s.ErrorIs(err, queues.ErrQueueActive)
	s.Empty(client.deleted)

	// force overrides the active check
	s.Require().NoError(a.Obliterate(context.Background(), true))
	s.Contains(client.deleted, "bull:mail")
}

func (s *LegacySuite) TestObliteratePropagatesFailures() {
	scanBroken := newWithClient("mail", "bull", &fakeClient{scanErr: errors.New("store unreachable")})
	s.ErrorContains(scanBroken.Obliterate(context.Background(), true), "store unreachable")

	delBroken := newWithClient("mail", "bull", &fakeClient{
		scanPages: [][]string{{"bull:mail:1"}},
		delErr:    errors.New("readonly replica"),
	})
	s.ErrorContains(delBroken.Obliterate(context.Background(), true), "readonly replica")
}

func (s *LegacySuite) TestClose() {
	client := &fakeClient{}
	a := newWithClient("mail", "bull", client)

	s.Require().NoError(a.Close())
	s.True(client.closed)
}
