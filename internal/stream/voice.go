package stream

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

var ErrBusy = errors.New("voice connection is already playing")

// VoiceTransport joins discord voice channels. One VoiceConn exists per guild.
type VoiceTransport struct {
	s *discordgo.Session

	mu    sync.Mutex
	conns map[string]*VoiceConn
}

func NewVoiceTransport(s *discordgo.Session) *VoiceTransport {
	return &VoiceTransport{s: s, conns: make(map[string]*VoiceConn)}
}

// Connect joins channelID, moving the guild's existing connection if needed.
func (t *VoiceTransport) Connect(ctx context.Context, guildID, channelID string) (*VoiceConn, error) {
	type joined struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	ch := make(chan joined, 1)
	go func() {
		vc, err := t.s.ChannelVoiceJoin(guildID, channelID, false, true)
		ch <- joined{vc, err}
	}()

	var res joined
	select {
	case res = <-ch:
	case <-ctx.Done():
		// A late join would leave the bot in the channel with nobody owning it.
		go func() {
			if late := <-ch; late.err == nil {
				t.forget(guildID, late.vc)
				safeDisconnect(late.vc)
			}
		}()
		return nil, errors.Wrap(ctx.Err(), "voice join")
	}
	if res.err != nil {
		return nil, errors.Wrapf(res.err, "join voice channel %s", channelID)
	}

	// This prevents the panic in Kill() when channels are closed
	if res.vc.OpusSend == nil {
		res.vc.OpusSend = make(chan []byte, 2)
	}
	if res.vc.OpusRecv == nil {
		res.vc.OpusRecv = make(chan *discordgo.Packet, 2)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[guildID]; ok && c.vc == res.vc {
		return c, nil
	}
	c := &VoiceConn{
		t:       t,
		guildID: guildID,
		vc:      res.vc,
		log:     zlog.With().Str("room", guildID).Logger(),
	}
	t.conns[guildID] = c
	return c, nil
}

func (t *VoiceTransport) forget(guildID string, vc *discordgo.VoiceConnection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[guildID]; ok && c.vc == vc {
		delete(t.conns, guildID)
	}
}

// VoiceConn plays local audio files into one voice connection, one at a time.
type VoiceConn struct {
	t       *VoiceTransport
	guildID string
	vc      *discordgo.VoiceConnection
	log     zerolog.Logger

	mu  sync.Mutex
	cur *playSession
}

type playSession struct {
	ctx        context.Context
	cancel     context.CancelFunc
	doneCh     chan struct{}
	onComplete func(error)

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func (c *VoiceConn) ChannelID() string {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.ChannelID
}

// Play starts streaming path. onComplete runs exactly once: nil when the file
// ended or Stop was called, the failure otherwise.
func (c *VoiceConn) Play(path string, onComplete func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil {
		return ErrBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	pcm, err := StartPCMStream(ctx, path)
	if err != nil {
		cancel()
		return err
	}
	enc, err := NewEncoder()
	if err != nil {
		pcm.Close()
		cancel()
		return err
	}

	sess := &playSession{
		ctx:        ctx,
		cancel:     cancel,
		doneCh:     make(chan struct{}),
		onComplete: onComplete,
	}
	c.cur = sess
	go c.sendLoop(sess, pcm, enc)
	return nil
}

func (c *VoiceConn) sendLoop(sess *playSession, pcm *PCMStreamer, enc *Encoder) {
	err := c.stream(sess, pcm, enc)
	enc.Close()
	pcm.Close()
	sess.cancel()

	c.mu.Lock()
	if c.cur == sess {
		c.cur = nil
	}
	c.mu.Unlock()
	close(sess.doneCh)

	if err != nil {
		c.log.Warn().Err(err).Str("ffmpeg", pcm.Stderr()).Msg("playback failed")
	}
	sess.onComplete(err)
}

func (c *VoiceConn) stream(sess *playSession, pcm *PCMStreamer, enc *Encoder) error {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !isVoiceReady(c.vc) {
		select {
		case <-sess.ctx.Done():
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}
	if !isVoiceReady(c.vc) {
		return errors.New("voice connection not ready")
	}

	_ = c.vc.Speaking(true)
	defer func() { _ = c.vc.Speaking(false) }()

	send := func(pkt []byte) error {
		out := append([]byte(nil), pkt...)
		select {
		case c.vc.OpusSend <- out:
			return nil
		case <-sess.ctx.Done():
			return sess.ctx.Err()
		}
	}

	r := bufio.NewReaderSize(pcm.Stdout(), 128*1024)
	frame := make([]byte, enc.FrameBytes())
	for {
		if err := sess.waitIfPaused(); err != nil {
			return nil
		}
		n, err := io.ReadFull(r, frame)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			clear(frame[n:])
			err = nil
		}
		if err != nil {
			if sess.ctx.Err() != nil || errors.Is(err, io.EOF) {
				break
			}
			return errors.Wrap(err, "read pcm")
		}
		if err := enc.EncodeFrame(frame, send); err != nil {
			if sess.ctx.Err() != nil {
				return nil
			}
			return err
		}
		if n < len(frame) {
			break
		}
	}
	if sess.ctx.Err() != nil {
		return nil
	}
	if err := enc.Flush(send); err != nil && sess.ctx.Err() == nil {
		return err
	}
	return nil
}

func (c *VoiceConn) Pause() error {
	c.mu.Lock()
	sess := c.cur
	c.mu.Unlock()
	if sess == nil {
		return errors.New("nothing playing")
	}
	sess.pause()
	_ = c.vc.Speaking(false)
	return nil
}

func (c *VoiceConn) Resume() error {
	c.mu.Lock()
	sess := c.cur
	c.mu.Unlock()
	if sess == nil {
		return errors.New("nothing playing")
	}
	_ = c.vc.Speaking(true)
	sess.unpause()
	return nil
}

// Stop ends the current play, if any, and waits briefly for the sender to exit.
func (c *VoiceConn) Stop() error {
	c.mu.Lock()
	sess := c.cur
	c.mu.Unlock()
	if sess == nil {
		return nil
	}
	sess.cancel()
	select {
	case <-sess.doneCh:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func (c *VoiceConn) Disconnect() error {
	_ = c.Stop()
	c.t.forget(c.guildID, c.vc)
	return safeDisconnect(c.vc)
}

func (s *playSession) pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		s.paused = true
		s.resume = make(chan struct{})
	}
}

func (s *playSession) unpause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		s.paused = false
		close(s.resume)
	}
}

func (s *playSession) waitIfPaused() error {
	s.mu.Lock()
	if !s.paused {
		s.mu.Unlock()
		return s.ctx.Err()
	}
	ch := s.resume
	s.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func isVoiceReady(vc *discordgo.VoiceConnection) bool {
	vc.RLock()
	defer vc.RUnlock()
	return vc.Ready
}

// safeDisconnect leaves the channel; discordgo can panic on half-closed connections.
func safeDisconnect(vc *discordgo.VoiceConnection) (err error) {
	if vc == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Interface("panic", r).Str("room", vc.GuildID).Msg("voice disconnect panic recovered")
			err = errors.Newf("voice disconnect panic: %v", r)
		}
	}()
	if vc.OpusSend == nil {
		vc.OpusSend = make(chan []byte, 2)
	}
	if vc.OpusRecv == nil {
		vc.OpusRecv = make(chan *discordgo.Packet, 2)
	}
	_ = vc.Speaking(false)
	return errors.Wrap(vc.Disconnect(), "voice disconnect")
}
