package audio

// StreamResampler converts PCM16 between sample rates, keeping state across
// appended blocks. Equal rates pass samples through untouched.
type StreamResampler struct {
	stream *soxrStream
	outBuf []float32
	pass   []int16
}

// NewStreamResampler creates a streaming resampler for continuous audio.
func NewStreamResampler(inRate, outRate int) (*StreamResampler, error) {
	if inRate == outRate && inRate > 0 {
		return &StreamResampler{}, nil
	}
	stream, err := acquireSoxrStream(inRate, outRate)
	if err != nil {
		return nil, err
	}
	return &StreamResampler{stream: stream}, nil
}

// Close releases the underlying engine.
func (s *StreamResampler) Close() {
	if s == nil {
		return
	}
	s.stream.release()
	s.stream = nil
	s.outBuf = nil
	s.pass = nil
}

// AppendPCM appends PCM16 samples for resampling.
func (s *StreamResampler) AppendPCM(pcm []int16) error {
	if s == nil || len(pcm) == 0 {
		return nil
	}
	if s.stream == nil {
		s.pass = append(s.pass, pcm...)
		return nil
	}
	tmp := AcquireFloat32(len(pcm))
	tmp = Int16SliceToFloat32Into(tmp, pcm)
	out, err := s.stream.process(tmp)
	ReleaseFloat32(tmp)
	if err != nil {
		return err
	}
	s.outBuf = append(s.outBuf, out...)
	return nil
}

// Flush pushes out samples still buffered inside the engine.
func (s *StreamResampler) Flush() error {
	if s == nil || s.stream == nil {
		return nil
	}
	out, err := s.stream.flush()
	if err != nil {
		return err
	}
	s.outBuf = append(s.outBuf, out...)
	return nil
}

// Drain returns every resampled sample produced so far.
func (s *StreamResampler) Drain() []int16 {
	if s == nil {
		return nil
	}
	if s.stream == nil {
		out := s.pass
		s.pass = nil
		return out
	}
	out := Float32SliceToInt16SliceInto(nil, s.outBuf)
	s.outBuf = s.outBuf[:0]
	return out
}

// Resample converts a complete PCM16 buffer from inRate to outRate.
func Resample(pcm []int16, inRate, outRate int) ([]int16, error) {
	r, err := NewStreamResampler(inRate, outRate)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if err := r.AppendPCM(pcm); err != nil {
		return nil, err
	}
	if err := r.Flush(); err != nil {
		return nil, err
	}
	return r.Drain(), nil
}
