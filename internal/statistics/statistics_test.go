package statistics

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatisticsCounters(t *testing.T) {
	s := NewStatistics()

	s.IncrementFilesFound()
	s.IncrementFilesFound()
	s.IncrementFilesProcessed()
	s.IncrementImagesCompressed()
	s.IncrementPassedThrough()
	s.AddBytes(2048, 512)
	s.Finish()

	assert.Equal(t, int64(2), s.FilesFound)
	assert.Equal(t, int64(1), s.FilesProcessed)
	assert.Equal(t, int64(1), s.ImagesCompressed)
	assert.Equal(t, int64(1), s.PassedThrough)
	assert.Equal(t, int64(1536), s.SavedBytes())
}

func TestStatisticsConcurrentUpdates(t *testing.T) {
	s := NewStatistics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.IncrementFilesProcessed()
			s.AddBytes(100, 50)
			s.AddFileType("image/webp")
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), s.FilesProcessed)
	assert.Equal(t, int64(2500), s.SavedBytes())
}

func TestStatisticsSummaryAndErrors(t *testing.T) {
	s := NewStatistics()
	s.IncrementFilesWithErrors()
	s.AddError("/media/broken.mp4", "video", errors.New("cannot load input as video"))
	s.AddFileType("video/mp4")
	s.Finish()

	errs := s.Errors()
	assert.Len(t, errs, 1)
	assert.Equal(t, "/media/broken.mp4", errs[0].FilePath)

	summary := s.GetSummary()
	assert.Contains(t, summary, "Errors:            1")
	assert.Contains(t, summary, "video/mp4: 1")
}
