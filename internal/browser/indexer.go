package browser

import (
	"encoding/json"
	"fmt"
)

// indexScript walks the visible part of the page, tags every interactive
// node with data-ai-id=<index> and returns a JSON array of Element.
// Text outside interactive nodes is emitted with index 0 for context.
const indexScript = `(() => {
	let idCounter = 1;
	const maxText = 100;
	const maxContext = 400;
	let contextCount = 0;
	const out = [];
	const interactiveTags = new Set(['a', 'button', 'input', 'textarea', 'select', 'details', 'summary']);
	const interactiveRoles = new Set(['button', 'link', 'checkbox', 'radio', 'menuitem', 'tab', 'textbox', 'combobox', 'option', 'switch', 'searchbox']);
	const skipTags = new Set(['script', 'style', 'svg', 'path', 'noscript', 'template']);
	const attrNames = ['type', 'name', 'placeholder', 'aria-label', 'title', 'role', 'href', 'value', 'alt'];

	document.querySelectorAll('[data-ai-id]').forEach(el => el.removeAttribute('data-ai-id'));

	function cleanText(text) {
		if (!text) return '';
		const res = String(text).replace(/\s+/g, ' ').trim();
		return res.length > maxText ? res.slice(0, maxText) + '...' : res;
	}

	function isVisible(el) {
		if (!el || !el.getBoundingClientRect) return false;
		if (el.getAttribute('aria-hidden') === 'true') return false;
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		const inViewport = rect.top < window.innerHeight && rect.bottom > 0 &&
			rect.left < window.innerWidth && rect.right > 0;
		return rect.width > 0 && rect.height > 0 &&
			style.visibility !== 'hidden' && style.display !== 'none' &&
			style.opacity !== '0' && inViewport;
	}

	function isInteractive(el) {
		const tag = el.tagName.toLowerCase();
		const role = (el.getAttribute('role') || '').toLowerCase();
		const tabIndex = el.getAttribute('tabindex');
		if (el.disabled) return false;
		return interactiveTags.has(tag) || interactiveRoles.has(role) ||
			el.isContentEditable ||
			(tabIndex !== null && tabIndex !== '-1') ||
			el.onclick != null;
	}

	function labelOf(el) {
		const tag = el.tagName.toLowerCase();
		let label = cleanText(el.innerText || el.textContent || '');
		if (!label) label = cleanText(el.getAttribute('aria-label'));
		if (!label) label = cleanText(el.getAttribute('title'));
		if ((tag === 'input' || tag === 'textarea') && !label) {
			label = cleanText(el.getAttribute('placeholder') || el.value);
		}
		return label;
	}

	function attrsOf(el) {
		const attrs = {};
		for (const name of attrNames) {
			const v = name === 'value' ? el.value : el.getAttribute(name);
			if (v) attrs[name] = cleanText(v);
		}
		return attrs;
	}

	function traverse(node, depth, insideInteractive) {
		if (!node || depth > 40) return;

		if (node.nodeType === Node.TEXT_NODE) {
			if (insideInteractive || contextCount >= maxContext) return;
			const text = cleanText(node.textContent);
			if (text.length > 2 && node.parentElement && isVisible(node.parentElement)) {
				out.push({index: 0, tag: '', text: text});
				contextCount++;
			}
			return;
		}
		if (node.nodeType !== Node.ELEMENT_NODE) return;

		const el = node;
		const tag = el.tagName.toLowerCase();
		if (skipTags.has(tag)) return;

		let inside = insideInteractive;
		if (!insideInteractive && isVisible(el) && isInteractive(el)) {
			const aiId = idCounter++;
			el.setAttribute('data-ai-id', String(aiId));
			out.push({index: aiId, tag: tag, text: labelOf(el), attrs: attrsOf(el)});
			inside = true;
		}

		for (const child of el.childNodes) traverse(child, depth + 1, inside);
		if (el.shadowRoot) {
			for (const child of el.shadowRoot.childNodes) traverse(child, depth + 1, inside);
		}
	}

	if (document.body) traverse(document.body, 0, false);
	return JSON.stringify(out);
})()`

// scrollScript scrolls by dy pixels, or one viewport when dy is 0.
func scrollScript(down bool, amount int) string {
	sign := 1
	if !down {
		sign = -1
	}
	return fmt.Sprintf(`window.scrollBy(0, %d * (%d === 0 ? window.innerHeight : %d));`, sign, amount, amount)
}

func decodeElements(raw string) ([]Element, error) {
	if raw == "" {
		return nil, nil
	}
	var elements []Element
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		return nil, fmt.Errorf("decode element index: %w", err)
	}
	return elements, nil
}
