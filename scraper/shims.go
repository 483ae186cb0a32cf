package scraper

// shimJS runs before any document script, after stealth.JS. It is the same
// on every session.
const shimJS = `(() => {
  const define = (obj, prop, getter) => {
    try {
      Object.defineProperty(obj, prop, { get: getter, configurable: true });
    } catch (e) {}
  };

  define(navigator, 'webdriver', () => undefined);

  if (!window.chrome) {
    window.chrome = {};
  }
  if (!window.chrome.runtime) {
    window.chrome.runtime = {};
  }

  const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
  if (originalQuery) {
    window.navigator.permissions.query = (parameters) => (
      parameters && parameters.name === 'notifications'
        ? Promise.resolve({ state: Notification.permission })
        : originalQuery.call(window.navigator.permissions, parameters)
    );
  }

  define(navigator, 'plugins', () => [1, 2, 3, 4, 5]);
  define(navigator, 'languages', () => ['en-US', 'en']);
})();`

// acceptLanguage matches the languages reported by shimJS.
const acceptLanguage = "en-US,en;q=0.9"

// googleReferer makes the first navigation look like a search click-through.
const googleReferer = "https://www.google.com/"

// navigationStatusJS reads the HTTP status of the current document from the
// Navigation Timing API. It yields 0 when the browser does not expose it.
const navigationStatusJS = `() => {
  const entries = performance.getEntriesByType('navigation');
  return entries.length > 0 && entries[0].responseStatus ? entries[0].responseStatus : 0;
}`

// scrollHalfJS scrolls to the middle of the page to trigger lazy content.
const scrollHalfJS = `() => window.scrollTo(0, document.body ? document.body.scrollHeight / 2 : 0)`
