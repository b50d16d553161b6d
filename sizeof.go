package actorloop

// sizeOfCacheLine covers adjacent-line prefetch on common hardware.
const sizeOfCacheLine = 128
