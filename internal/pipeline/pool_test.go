package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wenqian/expense-scanner/internal/recognize"
	"github.com/wenqian/expense-scanner/internal/segment"
)

type mockRecognizer struct {
	fn     func(data []byte) (string, error)
	closed *atomic.Int32
}

func (m *mockRecognizer) Recognize(ctx context.Context, image []byte, progress recognize.ProgressFunc) (string, error) {
	if progress != nil {
		progress(0.5)
	}
	text, err := m.fn(image)
	if err != nil {
		return "", err
	}
	if progress != nil {
		progress(1)
	}
	return text, nil
}

func (m *mockRecognizer) Close() error {
	m.closed.Add(1)
	return nil
}

func echoFactory(created, closed *atomic.Int32) recognize.Factory {
	return func() (recognize.Recognizer, error) {
		created.Add(1)
		return &mockRecognizer{
			fn:     func(data []byte) (string, error) { return string(data), nil },
			closed: closed,
		}, nil
	}
}

func testChunks(texts ...string) []segment.Chunk {
	chunks := make([]segment.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = segment.Chunk{Index: i, Data: []byte(text)}
	}
	return chunks
}

var _ = Describe("Pool", func() {
	var (
		pool            Pool
		created, closed atomic.Int32
	)

	BeforeEach(func() {
		pool = NewPool(4)
		created.Store(0)
		closed.Store(0)
	})

	Describe("Workers", func() {
		It("never exceeds the chunk count", func() {
			Expect(pool.Workers(2)).To(Equal(2))
			Expect(pool.Workers(10)).To(Equal(4))
			Expect(pool.Workers(0)).To(Equal(0))
		})

		It("applies the default ceiling when unset", func() {
			Expect(Pool{}.Workers(10)).To(Equal(DefaultMaxWorkers))
		})
	})

	Describe("Process", func() {
		It("recognizes every chunk exactly once", func() {
			chunks := testChunks("a", "b", "c", "d", "e", "f")
			tracker := NewTracker(len(chunks), pool.Workers(len(chunks)))

			outcomes, err := pool.Process(context.Background(), chunks, echoFactory(&created, &closed), tracker, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcomes).To(HaveLen(6))

			texts := map[int]string{}
			for _, o := range outcomes {
				texts[o.Index] = o.Text
			}
			Expect(texts).To(Equal(map[int]string{0: "a", 1: "b", 2: "c", 3: "d", 4: "e", 5: "f"}))
		})

		It("acquires one recognizer per worker and closes each exactly once", func() {
			chunks := testChunks("a", "b", "c", "d", "e", "f")
			tracker := NewTracker(len(chunks), pool.Workers(len(chunks)))

			_, err := pool.Process(context.Background(), chunks, echoFactory(&created, &closed), tracker, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(created.Load()).To(Equal(int32(4)))
			Expect(closed.Load()).To(Equal(int32(4)))
		})

		It("sizes the pool down for small batches", func() {
			chunks := testChunks("a", "b")
			tracker := NewTracker(len(chunks), pool.Workers(len(chunks)))

			_, err := pool.Process(context.Background(), chunks, echoFactory(&created, &closed), tracker, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(created.Load()).To(Equal(int32(2)))
		})

		It("invokes onOutcome for every chunk", func() {
			chunks := testChunks("a", "b", "c", "d", "e")
			tracker := NewTracker(len(chunks), pool.Workers(len(chunks)))

			var (
				mu   sync.Mutex
				seen []string
			)
			_, err := pool.Process(context.Background(), chunks, echoFactory(&created, &closed), tracker, func(o Outcome) {
				mu.Lock()
				seen = append(seen, o.Text)
				mu.Unlock()
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(ConsistOf("a", "b", "c", "d", "e"))
		})

		It("drives tracker progress to exactly 1", func() {
			chunks := testChunks("a", "b", "c")
			tracker := NewTracker(len(chunks), pool.Workers(len(chunks)))

			_, err := pool.Process(context.Background(), chunks, echoFactory(&created, &closed), tracker, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(tracker.Progress()).To(Equal(1.0))
		})

		It("publishes monotonic progress while processing", func() {
			chunks := testChunks("a", "b", "c", "d", "e", "f", "g", "h")
			tracker := NewTracker(len(chunks), pool.Workers(len(chunks)))

			var (
				mu      sync.Mutex
				samples []float64
			)
			factory := func() (recognize.Recognizer, error) {
				created.Add(1)
				return &mockRecognizer{
					fn: func(data []byte) (string, error) {
						mu.Lock()
						samples = append(samples, tracker.Progress())
						mu.Unlock()
						return string(data), nil
					},
					closed: &closed,
				}, nil
			}

			_, err := pool.Process(context.Background(), chunks, factory, tracker, nil)
			Expect(err).NotTo(HaveOccurred())

			for i := 1; i < len(samples); i++ {
				Expect(samples[i]).To(BeNumerically(">=", samples[i-1]))
			}
			Expect(tracker.Progress()).To(Equal(1.0))
		})

		It("fails the batch on the first recognizer error", func() {
			chunks := testChunks("a", "boom", "c", "d")
			tracker := NewTracker(len(chunks), pool.Workers(len(chunks)))

			recognizeErr := errors.New("recognition exploded")
			factory := func() (recognize.Recognizer, error) {
				created.Add(1)
				return &mockRecognizer{
					fn: func(data []byte) (string, error) {
						if string(data) == "boom" {
							return "", recognizeErr
						}
						return string(data), nil
					},
					closed: &closed,
				}, nil
			}

			outcomes, err := pool.Process(context.Background(), chunks, factory, tracker, nil)
			Expect(err).To(MatchError(recognizeErr))
			Expect(outcomes).To(BeNil())
			Expect(tracker.Progress()).To(BeNumerically("<", 1.0))
		})

		It("closes every acquired recognizer after a failure", func() {
			chunks := testChunks("boom", "b", "c", "d", "e")
			tracker := NewTracker(len(chunks), pool.Workers(len(chunks)))

			factory := func() (recognize.Recognizer, error) {
				created.Add(1)
				return &mockRecognizer{
					fn: func(data []byte) (string, error) {
						if string(data) == "boom" {
							return "", errors.New("bad chunk")
						}
						return string(data), nil
					},
					closed: &closed,
				}, nil
			}

			_, err := pool.Process(context.Background(), chunks, factory, tracker, nil)
			Expect(err).To(HaveOccurred())
			Expect(closed.Load()).To(Equal(created.Load()))
		})

		It("closes already acquired recognizers when the factory fails", func() {
			chunks := testChunks("a", "b", "c", "d")
			tracker := NewTracker(len(chunks), pool.Workers(len(chunks)))

			factory := func() (recognize.Recognizer, error) {
				if created.Load() == 2 {
					return nil, errors.New("no more clients")
				}
				created.Add(1)
				return &mockRecognizer{
					fn:     func(data []byte) (string, error) { return string(data), nil },
					closed: &closed,
				}, nil
			}

			outcomes, err := pool.Process(context.Background(), chunks, factory, tracker, nil)
			Expect(err).To(HaveOccurred())
			Expect(outcomes).To(BeNil())
			Expect(closed.Load()).To(Equal(int32(2)))
		})

		It("finishes immediately for an empty batch", func() {
			tracker := NewTracker(0, 0)
			outcomes, err := pool.Process(context.Background(), nil, echoFactory(&created, &closed), tracker, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcomes).To(BeNil())
			Expect(created.Load()).To(BeZero())
			Expect(tracker.Progress()).To(Equal(1.0))
		})
	})
})
