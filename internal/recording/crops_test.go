package recording

import (
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxledger/rxledger/internal/detection"
	"github.com/rxledger/rxledger/internal/fingerprint"
)

func TestClampRect(t *testing.T) {
	t.Parallel()
	bounds := image.Rect(0, 0, 100, 80)

	tests := []struct {
		name string
		box  detection.BBox
		want image.Rectangle
	}{
		{"inside", detection.BBox{X1: 10, Y1: 10, X2: 20.2, Y2: 30}, image.Rect(10, 10, 21, 30)},
		{"swapped corners", detection.BBox{X1: 20, Y1: 30, X2: 10, Y2: 10}, image.Rect(10, 10, 20, 30)},
		{"overflow", detection.BBox{X1: -5, Y1: 70, X2: 120, Y2: 200}, image.Rect(0, 70, 100, 80)},
		{"outside", detection.BBox{X1: 200, Y1: 200, X2: 300, Y2: 300}, image.Rectangle{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := clampRect(tt.box, bounds)
			if tt.want.Empty() {
				assert.True(t, got.Empty())
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCropStoreWritesJPEGPerDetection(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	img := testImage(t, 1)
	fp := fingerprint.Of(img)
	dets := append(twoRegions(), detection.Detection{BBox: detection.BBox{X1: 500, Y1: 500, X2: 600, Y2: 600}})

	refs, err := NewCropStore(dir).Save(fp, img, dets)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Nil(t, refs[2])

	require.NotNil(t, refs[0])
	assert.Equal(t, filepath.Join(dir, string(fp), "0.jpg"), *refs[0])

	f, err := os.Open(*refs[1])
	require.NoError(t, err)
	defer f.Close()
	crop, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 40, crop.Bounds().Dx())
	assert.Equal(t, 65, crop.Bounds().Dy())
}

func TestCropStoreUndecodableImage(t *testing.T) {
	t.Parallel()

	refs, err := NewCropStore(t.TempDir()).Save(fingerprint.Of([]byte("x")), []byte("not an image"), twoRegions())
	require.Error(t, err)
	require.Len(t, refs, 2)
	assert.Nil(t, refs[0])
	assert.Nil(t, refs[1])
}

func TestCropStoreRefusesOversizedImage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := NewCropStore(dir)
	store.maxPixels = 100*80 - 1
	fp := fingerprint.Of([]byte("wide"))

	refs, err := store.Save(fp, testImage(t, 3), twoRegions())
	require.ErrorIs(t, err, ErrImageTooLarge)
	assert.Equal(t, []*string{nil, nil}, refs)
	_, err = os.Stat(filepath.Join(dir, string(fp)))
	assert.True(t, os.IsNotExist(err))
}

func TestCropStoreDisabled(t *testing.T) {
	t.Parallel()

	refs, err := NewCropStore("").Save(fingerprint.Of([]byte("x")), []byte("not an image"), twoRegions())
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	var nilStore *CropStore
	refs, err = nilStore.Save(fingerprint.Of([]byte("x")), nil, twoRegions())
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}
