/*
Package flows loads, validates and saves flow definitions.

Flows live in a ports.FlowStorage as "<name>.flow.json" files, with optional layout
companions ("<name>.ui.json") holding node coordinates. A Store validates every file
on load and drops the ones that fail, so one broken flow never takes the bot down.
Saving a flow set notifies subscribers (the engine) so they drop their caches.
*/
package flows
