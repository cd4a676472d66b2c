// Package firmware finds, downloads and unpacks IMD firmware images.
//
// The firmware is published as a zip archive whose URL is configured
// (firmware_file_url). The archive name carries the image name and a
// release date; ParseURL derives both the archive name and the image name
// expected inside it. Store keeps archives and extracted images in a local
// directory so a download happens once per release.
package firmware
