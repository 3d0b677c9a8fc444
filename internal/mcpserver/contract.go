package mcpserver

// SidecarFormat describes the sidecar records sidestamp reads and what it
// writes into the matching images.
const SidecarFormat = `# Sidecar Format

A sidecar is a UTF-8 JSON file whose name ends with ` + "`" + `.json` + "`" + `, stored next to
the image it describes.

` + "```" + `json
{
  "title": "IMG_0001.jpg",
  "photoTakenTime": {
    "timestamp": "1700000000",
    "formatted": "Nov 14, 2023, 10:13:20 PM UTC"
  }
}
` + "```" + `

## Rules

1. Only ` + "`" + `photoTakenTime.timestamp` + "`" + ` is read: Unix epoch seconds, as a string or a number.
   Every other field is ignored.
2. A missing, empty, ` + "`" + `null` + "`" + ` or ` + "`" + `0` + "`" + ` timestamp skips the sidecar.
3. The image is found by stripping ` + "`" + `.json` + "`" + ` and trying, in order, the bare name and
   the extensions ` + "`" + `.jpg` + "`" + `, ` + "`" + `.jpeg` + "`" + `, ` + "`" + `.png` + "`" + `, ` + "`" + `.gif` + "`" + `, ` + "`" + `.webp` + "`" + `. The first existing file wins:
   ` + "`" + `IMG_0001.jpg.json` + "`" + ` pairs with ` + "`" + `IMG_0001.jpg` + "`" + `, ` + "`" + `IMG_0002.json` + "`" + ` with ` + "`" + `IMG_0002.jpg` + "`" + `.
4. The timestamp is rendered as ` + "`" + `YYYY:MM:DD HH:MM:SS` + "`" + ` in the configured time zone and
   written to the EXIF tags DateTime, DateTimeOriginal and DateTimeDigitized.
   All other metadata and the pixel data are kept.
5. GIF images have no EXIF container and are reported as errors.
`
