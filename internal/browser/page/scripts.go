// Package page builds the in-page scripts a session runs and decodes their
// results into typed values.
package page

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Markers name the function inside each script. Test drivers use them to
// recognize which query is being run.
const (
	MarkerState             = "scalewobPageState"
	MarkerReadiness         = "scalewobReadiness"
	MarkerElementAtPoint    = "scalewobElementAtPoint"
	MarkerElementBySelector = "scalewobElementBySelector"
	MarkerFocus             = "scalewobFocus"
	MarkerEvaluateTask      = "scalewobEvaluateTask"
	MarkerUserScript        = "scalewobUserScript"
)

// status values carried in the "__scalewob" field of evaluation results.
const (
	statusTimeout = "timeout"
	statusError   = "error"
)

const stateScript = `(function scalewobPageState() {
  return {
    url: window.location.href,
    title: document.title,
    viewport: {
      width: window.innerWidth,
      height: window.innerHeight,
      scrollX: window.scrollX,
      scrollY: window.scrollY
    },
    readyState: document.readyState
  };
})()`

const readinessScript = `(function scalewobReadiness() {
  return {
    readyState: document.readyState,
    childCount: document.body ? document.body.children.length : 0
  };
})()`

const elementAtPointScript = `(function scalewobElementAtPoint(x, y) {
  const el = document.elementFromPoint(x, y);
  if (!el) {
    return { ok: false, error: 'no element at coordinates (' + x + ', ' + y + ')' };
  }
  const rect = el.getBoundingClientRect();
  const style = window.getComputedStyle(el);
  const attributes = {};
  for (const attr of Array.from(el.attributes || [])) {
    attributes[attr.name] = attr.value;
  }
  return {
    ok: true,
    value: {
      tagName: el.tagName,
      id: el.id || '',
      className: typeof el.className === 'string' ? el.className : '',
      text: (el.textContent || '').substring(0, 100),
      value: el.value != null ? String(el.value) : '',
      type: el.type || '',
      href: el.href ? String(el.href) : '',
      src: el.src ? String(el.src) : '',
      position: {
        x: rect.left + rect.width / 2,
        y: rect.top + rect.height / 2,
        width: rect.width,
        height: rect.height,
        top: rect.top,
        left: rect.left,
        bottom: rect.bottom,
        right: rect.right
      },
      style: {
        display: style.display,
        visibility: style.visibility,
        opacity: style.opacity
      },
      attributes: attributes
    }
  };
})(%d, %d)`

const elementBySelectorScript = `(function scalewobElementBySelector(sel) {
  let el;
  try {
    el = document.querySelector(sel);
  } catch (e) {
    return { ok: false, error: 'invalid selector: ' + sel };
  }
  if (!el) {
    return { ok: false, error: 'element not found: ' + sel };
  }
  const rect = el.getBoundingClientRect();
  return {
    ok: true,
    value: {
      tagName: el.tagName,
      id: el.id || '',
      className: typeof el.className === 'string' ? el.className : '',
      text: (el.textContent || '').substring(0, 100),
      x: rect.left + rect.width / 2,
      y: rect.top + rect.height / 2,
      width: rect.width,
      height: rect.height,
      visible: rect.width > 0 && rect.height > 0
    }
  };
})(%s)`

const focusScript = `(function scalewobFocus() {
  const el = document.activeElement;
  if (!el || el === document.body) {
    return { editable: false };
  }
  const tag = el.tagName;
  const rect = el.getBoundingClientRect();
  return {
    editable: tag === 'INPUT' || tag === 'TEXTAREA' || el.isContentEditable === true,
    tagName: tag,
    id: el.id || '',
    className: typeof el.className === 'string' ? el.className : '',
    inputType: el.type || '',
    value: el.value != null ? String(el.value) : (el.textContent || ''),
    x: rect.left + rect.width / 2,
    y: rect.top + rect.height / 2
  };
})()`

// The timeout races the environment's evaluator in the page so a hung
// evaluateTask resolves to a recognizable sentinel.
const evaluateTaskScript = `(async function scalewobEvaluateTask(payload, timeoutMs) {
  if (typeof window.evaluateTask !== 'function') {
    return { __scalewob: 'error', error: 'window.evaluateTask is not defined' };
  }
  let timer;
  const expired = new Promise(function (resolve) {
    timer = setTimeout(function () { resolve({ __scalewob: 'timeout' }); }, timeoutMs);
  });
  try {
    return await Promise.race([
      Promise.resolve().then(function () { return window.evaluateTask(payload); }),
      expired
    ]);
  } catch (e) {
    return { __scalewob: 'error', error: (e && e.message) ? e.message : String(e) };
  } finally {
    clearTimeout(timer);
  }
})(%s, %d)`

// User scripts are function bodies, so "return x" works as it does in
// WebDriver. An undefined result comes back as null.
const userScript = `(async function scalewobUserScript() {
  const result = await (async function () {
%s
  })();
  return result === undefined ? null : result;
})()`

func StateScript() string { return stateScript }

func ReadinessScript() string { return readinessScript }

func FocusScript() string { return focusScript }

// ElementAtPointScript looks up the topmost element at a viewport point.
func ElementAtPointScript(x, y int) string {
	return fmt.Sprintf(elementAtPointScript, x, y)
}

// ElementBySelectorScript looks up the first element matching a CSS selector.
// The selector is JSON encoded, never spliced into the source.
func ElementBySelectorScript(selector string) (string, error) {
	arg, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encoding selector: %w", err)
	}
	return fmt.Sprintf(elementBySelectorScript, arg), nil
}

// EvaluateTaskScript calls window.evaluateTask(payload) with an in-page timeout.
func EvaluateTaskScript(payload interface{}, timeout time.Duration) (string, error) {
	arg, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding evaluation payload: %w", err)
	}
	return fmt.Sprintf(evaluateTaskScript, arg, timeout.Milliseconds()), nil
}

// UserScript wraps caller supplied JavaScript.
func UserScript(body string) string {
	return fmt.Sprintf(userScript, body)
}
