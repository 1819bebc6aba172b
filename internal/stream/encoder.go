package stream

import (
	"github.com/asticode/go-astiav"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const (
	sampleRate = 48000
	channels   = 2
	frameSize  = 960 // samples per channel in 20 ms
)

type OpusPacketHandler func(pkt []byte) error

// Encoder turns 20 ms s16le stereo PCM frames into opus packets via libopus.
type Encoder struct {
	cc     *astiav.CodecContext
	frame  *astiav.Frame
	packet *astiav.Packet
}

func NewEncoder() (*Encoder, error) {
	codec := astiav.FindEncoderByName("libopus")
	if codec == nil {
		return nil, errors.New("libopus encoder not found (check ffmpeg installation)")
	}

	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, errors.New("allocate libopus codec context")
	}
	cc.SetSampleRate(sampleRate)
	cc.SetChannelLayout(astiav.ChannelLayoutStereo)
	cc.SetSampleFormat(astiav.SampleFormatS16)
	cc.SetBitRate(128_000)

	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("frame_duration", "20", 0)
	_ = opts.Set("application", "audio", 0)

	if err := cc.Open(codec, opts); err != nil {
		cc.Free()
		return nil, errors.Wrap(err, "open opus encoder")
	}

	frame := astiav.AllocFrame()
	if frame == nil {
		cc.Free()
		return nil, errors.New("allocate encoder frame")
	}
	frame.SetSampleRate(sampleRate)
	frame.SetChannelLayout(astiav.ChannelLayoutStereo)
	frame.SetSampleFormat(astiav.SampleFormatS16)
	frame.SetNbSamples(frameSize)
	if err := frame.AllocBuffer(0); err != nil {
		frame.Free()
		cc.Free()
		return nil, errors.Wrap(err, "allocate frame buffer")
	}

	pkt := astiav.AllocPacket()
	if pkt == nil {
		frame.Free()
		cc.Free()
		return nil, errors.New("allocate encoder packet")
	}

	zlog.Debug().Int("sample_rate", cc.SampleRate()).Int64("bitrate", cc.BitRate()).Msg("opus encoder ready")
	return &Encoder{cc: cc, frame: frame, packet: pkt}, nil
}

func (e *Encoder) Close() {
	if e.packet != nil {
		e.packet.Free()
	}
	if e.frame != nil {
		e.frame.Free()
	}
	if e.cc != nil {
		e.cc.Free()
	}
}

// FrameBytes is the exact PCM length EncodeFrame accepts.
func (e *Encoder) FrameBytes() int {
	return frameSize * channels * 2
}

// EncodeFrame encodes one interleaved s16le frame and hands every produced packet to onPacket.
// Packet bytes are only valid during the callback.
func (e *Encoder) EncodeFrame(pcm []byte, onPacket OpusPacketHandler) error {
	if len(pcm) != e.FrameBytes() {
		return errors.Newf("pcm frame is %d bytes, want %d", len(pcm), e.FrameBytes())
	}
	if err := e.frame.Data().SetBytes(pcm, 0); err != nil {
		return errors.Wrap(err, "set frame data")
	}
	if err := e.cc.SendFrame(e.frame); err != nil {
		return errors.Wrap(err, "send frame")
	}
	return e.drain(onPacket)
}

// Flush emits whatever the encoder still buffers.
func (e *Encoder) Flush(onPacket OpusPacketHandler) error {
	if err := e.cc.SendFrame(nil); err != nil {
		if errors.Is(err, astiav.ErrEof) {
			return nil
		}
		return errors.Wrap(err, "send flush frame")
	}
	return e.drain(onPacket)
}

func (e *Encoder) drain(onPacket OpusPacketHandler) error {
	for {
		e.packet.Unref()
		if err := e.cc.ReceivePacket(e.packet); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return errors.Wrap(err, "receive opus packet")
		}
		if err := onPacket(e.packet.Data()); err != nil {
			return err
		}
	}
}
