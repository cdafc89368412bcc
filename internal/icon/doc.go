// Package icon holds the fixed-size notification icon bitmap, the rasterizer
// that turns an icon handle into one, and the burn-in-safe transform.
package icon
