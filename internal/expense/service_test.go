package expense

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/wenqian/expense-scanner/internal/pipeline"
	"github.com/wenqian/expense-scanner/internal/recognize"
	"github.com/wenqian/expense-scanner/internal/record"
	"github.com/wenqian/expense-scanner/internal/segment"
)

type mockStore struct {
	records []record.Record
	saves   int
	getErr  error
	saveErr error
	cleared bool
}

func (m *mockStore) GetAll() ([]record.Record, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return append([]record.Record{}, m.records...), nil
}

func (m *mockStore) SaveAll(records []record.Record) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records = append([]record.Record{}, records...)
	m.saves++
	return nil
}

func (m *mockStore) Clear() error {
	m.records = nil
	m.cleared = true
	return nil
}

func (m *mockStore) Close() error { return nil }

type cannedRecognizer struct {
	text string
	err  error
}

func (c *cannedRecognizer) Recognize(ctx context.Context, image []byte, progress recognize.ProgressFunc) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	if progress != nil {
		progress(1)
	}
	return c.text, nil
}

func (c *cannedRecognizer) Close() error { return nil }

func cannedFactory(text string, err error) recognize.Factory {
	return func() (recognize.Recognizer, error) {
		return &cannedRecognizer{text: text, err: err}, nil
	}
}

// pngUpload encodes a small uniform image so segmentation yields one chunk.
func pngUpload(name string) UploadFile {
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return UploadFile{Name: name, ContentType: "image/png", Data: buf.Bytes()}
}

func testService(store *mockStore, factory recognize.Factory) *Service {
	splitter := segment.Splitter{
		TargetHeight:   100,
		ScanRange:      40,
		RowStride:      5,
		SamplesPerRow:  20,
		BlankThreshold: 10,
		JPEGQuality:    85,
	}
	return NewService(store, splitter, pipeline.NewPool(2), factory)
}

var _ = Describe("Service", func() {
	var store *mockStore

	BeforeEach(func() {
		store = &mockStore{}
	})

	Describe("Records", func() {
		It("returns records newest first", func() {
			store.records = []record.Record{
				{Time: "2025-01-05 08:00:00"},
				{Time: "2025-01-06 09:00:00"},
			}
			service := testService(store, cannedFactory("", nil))

			records, err := service.Records()
			Expect(err).NotTo(HaveOccurred())
			Expect(records[0].Time).To(Equal("2025-01-06 09:00:00"))
		})

		It("migrates legacy time keys once", func() {
			store.records = []record.Record{{Time: "2025/1/5 8:00:00"}}
			service := testService(store, cannedFactory("", nil))

			records, err := service.Records()
			Expect(err).NotTo(HaveOccurred())
			Expect(records[0].Time).To(Equal("2025-01-05 08:00:00"))
			Expect(store.saves).To(Equal(1))

			_, err = service.Records()
			Expect(err).NotTo(HaveOccurred())
			Expect(store.saves).To(Equal(1))
		})

		It("propagates store failures", func() {
			store.getErr = errors.New("db locked")
			service := testService(store, cannedFactory("", nil))

			_, err := service.Records()
			Expect(err).To(MatchError(store.getErr))
		})
	})

	Describe("ProcessUpload", func() {
		It("segments, recognizes and persists new records", func() {
			text := "饮水\n-3.50\n2025-01-05 08:30:00"
			service := testService(store, cannedFactory(text, nil))

			count, err := service.ProcessUpload(context.Background(), []UploadFile{pngUpload("shot.png")})
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))

			Expect(store.records).To(HaveLen(1))
			Expect(store.records[0].Time).To(Equal("2025-01-05 08:30:00"))
			Expect(store.records[0].Category).To(Equal(record.Water))
			Expect(store.records[0].Amount.Equal(decimal.RequireFromString("3.5"))).To(BeTrue())

			progress, processing := service.Progress()
			Expect(progress).To(Equal(1.0))
			Expect(processing).To(BeFalse())
		})

		It("suppresses records already in the collection", func() {
			store.records = []record.Record{{Time: "2025-01-05 08:30:00", Category: record.Water}}
			text := "饮水\n-3.50\n2025-01-05 08:30:00"
			service := testService(store, cannedFactory(text, nil))

			count, err := service.ProcessUpload(context.Background(), []UploadFile{pngUpload("shot.png")})
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(BeZero())
			Expect(store.saves).To(BeZero())
		})

		It("rejects an empty batch", func() {
			service := testService(store, cannedFactory("", nil))
			_, err := service.ProcessUpload(context.Background(), nil)
			Expect(err).To(HaveOccurred())
		})

		It("rejects undecodable uploads", func() {
			service := testService(store, cannedFactory("", nil))
			bad := UploadFile{Name: "junk.png", ContentType: "image/png", Data: []byte("not an image")}
			_, err := service.ProcessUpload(context.Background(), []UploadFile{bad})
			Expect(err).To(HaveOccurred())
			Expect(store.saves).To(BeZero())
		})

		It("persists nothing when recognition fails", func() {
			recognizeErr := errors.New("model offline")
			service := testService(store, cannedFactory("", recognizeErr))

			_, err := service.ProcessUpload(context.Background(), []UploadFile{pngUpload("shot.png")})
			Expect(err).To(MatchError(recognizeErr))
			Expect(store.saves).To(BeZero())
		})
	})

	Describe("Progress", func() {
		It("reports zero before any batch", func() {
			service := testService(store, cannedFactory("", nil))
			progress, processing := service.Progress()
			Expect(progress).To(BeZero())
			Expect(processing).To(BeFalse())
		})
	})

	Describe("ImportFile", func() {
		It("imports a JSON backup", func() {
			service := testService(store, cannedFactory("", nil))
			content := `[{"time":"2025-01-05 08:00:00","type":"饮水","amount":3.5}]`

			count, err := service.ImportFile("backup.json", []byte(content))
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))
			Expect(store.records).To(HaveLen(1))
		})

		It("imports a CSV export", func() {
			service := testService(store, cannedFactory("", nil))
			content := "Time,Type,Amount\n2025-01-05 08:00:00,洗浴,12.5\n"

			count, err := service.ImportFile("export.csv", []byte(content))
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))
			Expect(store.records[0].Category).To(Equal(record.Bath))
		})

		It("counts only records that are new", func() {
			store.records = []record.Record{{Time: "2025-01-05 08:00:00", Category: record.Water}}
			service := testService(store, cannedFactory("", nil))
			content := `[
				{"time":"2025-01-05 08:00:00","type":"饮水","amount":3.5},
				{"time":"2025-01-06 09:00:00","type":"洗浴","amount":12}
			]`

			count, err := service.ImportFile("backup.json", []byte(content))
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))
			Expect(store.records).To(HaveLen(2))
		})

		It("rejects unknown file types", func() {
			service := testService(store, cannedFactory("", nil))
			_, err := service.ImportFile("records.xlsx", []byte("whatever"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ExportJSON and ExportCSV", func() {
		BeforeEach(func() {
			store.records = []record.Record{
				{Time: "2025-01-05 08:30:00", Category: record.Water, Amount: decimal.RequireFromString("3.5")},
			}
		})

		It("exports the grouped JSON backup", func() {
			service := testService(store, cannedFactory("", nil))
			data, err := service.ExportJSON()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"2025-01"`))
		})

		It("exports BOM-prefixed CSV", func() {
			service := testService(store, cannedFactory("", nil))
			data, err := service.ExportCSV()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(HavePrefix("\uFEFF"))
			Expect(string(data)).To(ContainSubstring("2025-01-05 08:30:00,饮水,3.5"))
		})
	})

	Describe("ClearAll", func() {
		It("empties the store", func() {
			store.records = []record.Record{{Time: "2025-01-05 08:00:00"}}
			service := testService(store, cannedFactory("", nil))
			Expect(service.ClearAll()).To(Succeed())
			Expect(store.cleared).To(BeTrue())
			Expect(store.records).To(BeEmpty())
		})
	})
})
