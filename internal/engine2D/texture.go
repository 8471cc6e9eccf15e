package engine2D

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"os"
	"time"

	"feedbackwarp/internal/convert"
	"feedbackwarp/internal/gpu"
	"feedbackwarp/internal/utils"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// PlaceholderColor fills a texture until its image arrives.
var PlaceholderColor = color.RGBA{R: 0, G: 0, B: 255, A: 255}

// FetchFunc returns the raw bytes of a texture source.
type FetchFunc func(ctx context.Context, source string) ([]byte, error)

type LoaderOption func(*TextureLoader)

// WithFetcher replaces the default HTTP and file fetcher.
func WithFetcher(fetch FetchFunc) LoaderOption {
	return func(l *TextureLoader) { l.fetch = fetch }
}

func WithHTTPClient(client *http.Client) LoaderOption {
	return func(l *TextureLoader) { l.client = client }
}

// WithRetry sets how many times a failed fetch is retried, the delay before
// the first retry (doubled after each) and the deadline of a single attempt.
func WithRetry(retries int, backoff, timeout time.Duration) LoaderOption {
	return func(l *TextureLoader) {
		l.retries = retries
		l.backoff = backoff
		l.timeout = timeout
	}
}

// TextureLoader creates textures that show a placeholder pixel at once and
// receive their real image later. Fetching and decoding run on goroutines;
// uploads happen when the owner of the device calls Apply.
type TextureLoader struct {
	dev     gpu.Device
	client  *http.Client
	fetch   FetchFunc
	retries int
	backoff time.Duration
	timeout time.Duration
}

func NewTextureLoader(dev gpu.Device, opts ...LoaderOption) *TextureLoader {
	l := &TextureLoader{
		dev:     dev,
		client:  http.DefaultClient,
		retries: 2,
		backoff: 500 * time.Millisecond,
		timeout: 15 * time.Second,
	}
	l.fetch = l.defaultFetch
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PendingTexture is a texture handle whose content is still being fetched.
// The handle never changes; only its content is replaced, once.
type PendingTexture struct {
	Source  string
	Texture gpu.TextureID

	done    chan struct{}
	img     *image.RGBA
	err     error
	applied bool
}

// Load allocates the texture, uploads the placeholder and starts the fetch.
// It must be called on the render thread.
func (l *TextureLoader) Load(ctx context.Context, source string) *PendingTexture {
	tex := l.dev.CreateTexture()
	placeholder := image.NewRGBA(image.Rect(0, 0, 1, 1))
	placeholder.SetRGBA(0, 0, PlaceholderColor)
	l.dev.TexImage(tex, placeholder)

	p := &PendingTexture{
		Source:  source,
		Texture: tex,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(p.done)
		p.img, p.err = l.fetchImage(ctx, source)
		if p.err != nil {
			utils.Error("Texture: %s failed: %v", source, p.err)
			return
		}
		b := p.img.Bounds()
		utils.Debug("Texture: %s decoded (%dx%d)", source, b.Dx(), b.Dy())
	}()

	return p
}

// Ready is closed once the fetch has succeeded or given up. The texture
// still holds the placeholder until Apply returns true.
func (p *PendingTexture) Ready() <-chan struct{} {
	return p.done
}

// Err reports why the fetch failed. It is only meaningful after Ready.
func (p *PendingTexture) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Placeholder reports whether the texture still holds the placeholder pixel.
func (p *PendingTexture) Placeholder() bool {
	return !p.applied
}

func (p *PendingTexture) wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply uploads the fetched image into the texture. It is a no-op before the
// fetch completes, after a failed fetch, and on every call after the first
// upload. It must be called on the render thread.
func (p *PendingTexture) Apply(dev gpu.Device) bool {
	if p.applied {
		return true
	}
	select {
	case <-p.done:
	default:
		return false
	}
	if p.err != nil {
		return false
	}

	dev.TexImage(p.Texture, p.img)

	b := p.img.Bounds()
	// Both branches are identical. Mipmaps or edge clamping for
	// non-power-of-two images were never decided on.
	if gpu.IsPowerOfTwo(b.Dx()) && gpu.IsPowerOfTwo(b.Dy()) {
		dev.TexParameters(p.Texture, imageSampler)
	} else {
		utils.Debug("Texture: %s is %dx%d, not a power of two", p.Source, b.Dx(), b.Dy())
		dev.TexParameters(p.Texture, imageSampler)
	}

	p.img = nil
	p.applied = true
	utils.Info("Texture: %s loaded (%dx%d)", p.Source, b.Dx(), b.Dy())
	return true
}

var imageSampler = gpu.Sampler{
	WrapS:     gpu.Repeat,
	WrapT:     gpu.Repeat,
	MinFilter: gpu.Linear,
	MagFilter: gpu.Linear,
}

// fetchImage retries failed fetches with exponential backoff. Decode errors
// are permanent, since the same bytes would come back.
func (l *TextureLoader) fetchImage(ctx context.Context, source string) (*image.RGBA, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.backoff
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0

	var (
		img          *image.RGBA
		attempts     int
		decodeFailed bool
	)
	operation := func() error {
		attempts++
		data, err := l.fetchOnce(ctx, source)
		if err != nil {
			return err
		}
		img, err = convert.DecodeImage(data)
		if err != nil {
			decodeFailed = true
			return backoff.Permanent(fmt.Errorf("decode %s: %w", source, err))
		}
		return nil
	}
	notify := func(err error, delay time.Duration) {
		utils.Warn("Texture: %s attempt %d failed (%v), retrying in %s", source, attempts, err, delay)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(l.retries, 0))), ctx)
	err := backoff.RetryNotify(operation, b, notify)
	switch {
	case err == nil:
		return img, nil
	case decodeFailed:
		return nil, err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("fetch %s: giving up after %d attempts: %w", source, attempts, err)
}

func (l *TextureLoader) fetchOnce(ctx context.Context, source string) ([]byte, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.fetch(ctx, source)
}

func (l *TextureLoader) defaultFetch(ctx context.Context, source string) ([]byte, error) {
	if utils.IsRemote(source) {
		return l.fetchHTTP(ctx, source)
	}
	if archive, entry, ok := convert.SplitPkgSource(source); ok {
		pkg, err := convert.OpenPkg(utils.ResolveAssetPath(archive))
		if err != nil {
			return nil, err
		}
		return pkg.ReadFile(entry)
	}
	return os.ReadFile(utils.ResolveAssetPath(source))
}

func (l *TextureLoader) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Join waits for a set of pending textures.
type Join struct {
	done chan struct{}
	err  error
}

// AwaitAll joins pending textures in any completion order. The join fails
// with the first fetch error, or when ctx ends.
func AwaitAll(ctx context.Context, pending ...*PendingTexture) *Join {
	j := &Join{done: make(chan struct{})}
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pending {
		p := p
		g.Go(func() error { return p.wait(gctx) })
	}
	go func() {
		j.err = g.Wait()
		close(j.done)
	}()
	return j
}

// Done is closed when every texture is fetched or one failed.
func (j *Join) Done() <-chan struct{} {
	return j.done
}

// Err is the join result. It is only meaningful after Done.
func (j *Join) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}
