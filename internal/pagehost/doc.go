// Package pagehost mounts engagement sessions on behalf of remote pages.
//
// A page connected to the relay streams its browser signals (scroll geometry,
// visibility changes, unload, web vitals, variant assignments) as Signal
// messages. Each page gets a Page bridge that replays those messages into the
// engagement package's injected capabilities, and the Registry owns the set of
// mounted pages, tearing down the ones whose connection went quiet.
package pagehost
