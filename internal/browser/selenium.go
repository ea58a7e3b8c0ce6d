package browser

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/firefox"
)

const geckoDriverPort = 4444

// SeleniumFetcher is the fallback extraction path used when no
// Chrome-family binary is available: a geckodriver-controlled Firefox
// loads the profile page and hands back the rendered HTML, which flows
// through the same goquery extraction chains as the chromedp path.
type SeleniumFetcher struct {
	driver  selenium.WebDriver
	service *selenium.Service
	logger  *logrus.Logger
}

func NewSeleniumFetcher(userAgent string, logger *logrus.Logger) (*SeleniumFetcher, error) {
	caps := selenium.Capabilities{
		"browserName": "firefox",
	}
	caps.AddFirefox(firefox.Capabilities{
		Args: []string{
			"--headless",
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
		},
		Prefs: map[string]interface{}{
			"general.useragent.override": userAgent,
			"dom.webdriver.enabled":      false,
			"useAutomationExtension":     false,
		},
	})

	selenium.SetDebug(false)
	service, err := selenium.NewGeckoDriverService("geckodriver", geckoDriverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to start geckodriver service: %w", err)
	}

	driver, err := selenium.NewRemote(caps, fmt.Sprintf("http://localhost:%d", geckoDriverPort))
	if err != nil {
		service.Stop()
		return nil, fmt.Errorf("failed to open webdriver session: %w", err)
	}

	return &SeleniumFetcher{
		driver:  driver,
		service: service,
		logger:  logger,
	}, nil
}

// FetchPageHTML navigates to a URL, performs the given number of
// scroll-to-bottom passes to trigger lazy loading, and returns the
// resulting page source.
func (sf *SeleniumFetcher) FetchPageHTML(pageURL string, scrollPasses int, settle time.Duration) (string, error) {
	if err := sf.driver.Get(pageURL); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}
	time.Sleep(settle)

	for i := 0; i < scrollPasses; i++ {
		if _, err := sf.driver.ExecuteScript("window.scrollTo(0, document.body.scrollHeight);", nil); err != nil {
			sf.logger.Warnf("scroll pass %d failed: %v", i+1, err)
			break
		}
		time.Sleep(settle)
	}

	html, err := sf.driver.PageSource()
	if err != nil {
		return "", fmt.Errorf("failed to read page source: %w", err)
	}
	return html, nil
}

func (sf *SeleniumFetcher) Close() {
	if sf.driver != nil {
		if err := sf.driver.Quit(); err != nil {
			sf.logger.Warnf("failed to quit webdriver session: %v", err)
		}
	}
	if sf.service != nil {
		sf.service.Stop()
	}
}
