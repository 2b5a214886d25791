// internal/browser/session/scripts.go
package session

// focusBinding is the window function the focus script calls.
const focusBinding = "__loginfillFocus"

// focusGlobal holds the element that last gained or lost focus.
const focusGlobal = "__loginfillLastFocus"

// focusScript records focus and blur on inputs anywhere in the page. Focus
// events are composed, so the capture listener on window sees events from
// inside shadow roots; composedPath()[0] is the real input.
const focusScript = `(() => {
	if (window.__loginfillFocusInstalled) return;
	window.__loginfillFocusInstalled = true;
	const record = (ev) => {
		const el = ev.composedPath()[0];
		if (!(el instanceof HTMLInputElement)) return;
		window.` + focusGlobal + ` = el;
		if (typeof window.` + focusBinding + ` === 'function') window.` + focusBinding + `(ev.type);
	};
	window.addEventListener('focus', record, true);
	window.addEventListener('blur', record, true);
})()`

// probeFunction reads the render state in one round trip. It returns null
// when the node has left the document.
const probeFunction = `function() {
	if (!this.isConnected) return null;
	const rect = this.getBoundingClientRect();
	const style = window.getComputedStyle(this);
	const opacities = [];
	for (let el = this; el; el = el.parentElement) {
		opacities.push(parseFloat(window.getComputedStyle(el).opacity));
	}
	return {
		disabled: !!this.disabled,
		type: typeof this.type === 'string' ? this.type.toLowerCase() : '',
		offsetWidth: this.offsetWidth || 0,
		offsetHeight: this.offsetHeight || 0,
		visibility: style.visibility,
		rect: {x: rect.x, y: rect.y, width: rect.width, height: rect.height},
		opacities: opacities,
		maxLength: typeof this.maxLength === 'number' ? this.maxLength : -1,
		viewport: {width: window.innerWidth, height: window.innerHeight},
	};
}`

const dispatchFunction = `function(type) {
	this.dispatchEvent(new Event(type, {bubbles: true}));
}`

const valueFunction = `function() { return this.value; }`

const setAttributeFunction = `function(name, value) { this.setAttribute(name, value); }`

const setValueFunction = `function(value) { this.value = value; }`
