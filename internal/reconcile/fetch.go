package reconcile

import (
	"sync"
	"time"

	"github.com/enterstudio/subscription-manager/internal/repos"
	"github.com/schollz/progressbar/v3"
)

// fetchResult pairs a repository with the local path of its productid
// artifact, or the fetch error.
type fetchResult struct {
	repo repos.Repository
	path string
	err  error
}

// fetchAll downloads the productid artifact of every active repository
// using a pool of workers. Results come back indexed by the input
// order, so database mutations stay deterministic regardless of which
// download finishes first.
func (r *Reconciler) fetchAll(active []repos.Repository) []fetchResult {
	total := len(active)
	results := make([]fetchResult, total)
	if total == 0 {
		return results
	}

	jobs := make(chan int, total)
	var wg sync.WaitGroup

	var bar *progressbar.ProgressBar
	if !r.cfg.Quiet {
		bar = progressbar.NewOptions(total,
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowDescriptionAtLineEnd(),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionSpinnerType(10),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	workers := r.cfg.Workers
	if workers > total {
		workers = total
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				repo := active[idx]
				if bar != nil {
					bar.Describe("fetching productid for " + repo.ID)
				}

				path, err := r.transport.FetchArtifact(repo, repos.ProductIDArtifact)
				results[idx] = fetchResult{repo: repo, path: path, err: err}

				if bar != nil {
					if err := bar.Add(1); err != nil {
						log.Errorf("failed to add to progress bar: %v", err)
					}
				}
			}
		}()
	}

	for i := range active {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	if bar != nil {
		if err := bar.Finish(); err != nil {
			log.Errorf("failed to finish progress bar: %v", err)
		}
	}

	return results
}
